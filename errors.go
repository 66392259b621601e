// Package cluster implements the intra-cluster coordination core of a
// peer-to-peer virtual-network service: authenticated inter-member framing,
// per-member outbound batching, peer-affinity tracking, the alive/announce
// protocol, cross-member rendezvous/relay, and geolocation-based redirection.
package cluster

import "errors"

// Error constants returned by public Cluster operations. Frame-level and
// sub-message decode failures are never surfaced this way: per the wire
// protocol's error taxonomy they are silently dropped (see wire.Open and
// dispatchSubMessages), since a malformed or replayed frame from a hostile
// or buggy member must never be allowed to disturb a caller.
var (
	// ErrIsSelf is returned by AddMember when asked to add the local member ID.
	ErrIsSelf = errors.New("cluster: member id is the local id")

	// ErrMemberOutOfRange is returned by AddMember when the ID exceeds the
	// configured member table capacity.
	ErrMemberOutOfRange = errors.New("cluster: member id out of range")

	// ErrPayloadTooLarge names a payload exceeding the protocol's size
	// limits. No Cluster operation returns it: SendViaCluster reports an
	// oversize payload by returning false, and send drops an oversize
	// sub-message silently.
	ErrPayloadTooLarge = errors.New("cluster: payload exceeds maximum size")

	// ErrUnknownMember names a member ID that is not currently active. No
	// Cluster operation returns it: frames from inactive members are dropped
	// silently and RemoveMember of an inactive ID is a no-op.
	ErrUnknownMember = errors.New("cluster: member is not active")

	// ErrMissingSendFunc is returned by NewCluster when Collaborators.Send
	// is nil; every other collaborator is optional, but without a send
	// function the core cannot deliver anything.
	ErrMissingSendFunc = errors.New("cluster: collaborators.Send is required")
)
