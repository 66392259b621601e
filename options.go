package cluster

import "time"

// ClusterOption configures a Cluster at construction time, following the
// same functional-option shape the teacher uses for AgentOption.
type ClusterOption interface {
	apply(*Cluster)
}

type clusterOptionFunc func(*Cluster)

func (f clusterOptionFunc) apply(c *Cluster) { f(c) }

// WithMaxMembers overrides Config.MaxMembers for this Cluster.
func WithMaxMembers(n int) ClusterOption {
	return clusterOptionFunc(func(c *Cluster) {
		c.cfg.MaxMembers = n
		if n > 0 {
			c.table = newMemberTable(n)
		}
	})
}

// WithClock overrides the time source used for all staleness and timeout
// comparisons. Tests use this to advance time deterministically instead of
// sleeping; production code should leave this unset (defaults to time.Now).
func WithClock(now func() time.Time) ClusterOption {
	return clusterOptionFunc(func(c *Cluster) { c.now = now })
}

// WithBuildInfo sets the protocol/build version advertised in ALIVE
// sub-messages' reserved version fields (see SPEC_FULL.md §4, "Supplemented
// from original_source").
func WithBuildInfo(v BuildInfo) ClusterOption {
	return clusterOptionFunc(func(c *Cluster) { c.build = v })
}

// WithMetrics attaches a metrics sink, replacing the one NewCluster builds
// from Config.Registerer (which stays unregistered when that is nil, so the
// core never requires a live Prometheus registry in tests). WithMetrics(nil)
// turns metric recording off.
func WithMetrics(m *Metrics) ClusterOption {
	return clusterOptionFunc(func(c *Cluster) { c.metrics = m })
}
