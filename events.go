package cluster

import "context"

// wire event names published on Cluster.Events, mirroring the teacher's own
// Agent.Events hub field.
const (
	eventMemberAdded   = "member-added"
	eventMemberRemoved = "member-removed"
	eventAffinityClaim = "affinity-claimed"
	eventProxyUnite    = "proxy-unite-matched"
)

// emit is a nil-safe wrapper so callers never need to check c.Events before
// publishing.
func (c *Cluster) emit(event string, args ...any) {
	if c.Events == nil {
		return
	}
	_ = c.Events.Emit(context.Background(), event, args...)
}
