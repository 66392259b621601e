package cluster

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the handful of counters/gauges the core records. A nil
// *Metrics is valid and every method is a safe no-op on it, so a Cluster
// built with WithMetrics(nil) records nothing.
type Metrics struct {
	framesReceived   prometheus.Counter
	framesRejected   prometheus.Counter
	submsgDispatched *prometheus.CounterVec
	submsgDropped    *prometheus.CounterVec
	affinityEvicted  prometheus.Counter
	proxyUniteMatch  prometheus.Counter
}

// NewMetrics builds a Metrics collector and, if reg is non-nil, registers
// it. Passing a nil Registerer still returns a usable collector that simply
// counts without being scraped — grounded on the teacher/pack's practice
// (yndnr-tokmesh-go's telemetry/metric package) of keeping the metrics
// registry optional rather than a hard dependency of core logic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clustercore_frames_received_total",
			Help: "Inbound cluster frames that passed authentication.",
		}),
		framesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clustercore_frames_rejected_total",
			Help: "Inbound cluster frames rejected (too short, too long, or failed authentication).",
		}),
		submsgDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clustercore_submsg_dispatched_total",
			Help: "Sub-messages successfully dispatched, by type.",
		}, []string{"type"}),
		submsgDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clustercore_submsg_dropped_total",
			Help: "Sub-messages dropped due to an inner decode error, by type.",
		}, []string{"type"}),
		affinityEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clustercore_affinity_evicted_total",
			Help: "Peer-affinity entries removed by the GC sweep.",
		}),
		proxyUniteMatch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clustercore_proxy_unite_matched_total",
			Help: "PROXY_UNITE requests that produced a rendezvous.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesReceived, m.framesRejected, m.submsgDispatched, m.submsgDropped, m.affinityEvicted, m.proxyUniteMatch)
	}
	return m
}

func (m *Metrics) frameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) frameRejected() {
	if m == nil {
		return
	}
	m.framesRejected.Inc()
}

func (m *Metrics) subMessageDispatched(typ byte) {
	if m == nil {
		return
	}
	m.submsgDispatched.WithLabelValues(submsgTypeName(typ)).Inc()
}

func (m *Metrics) subMessageDropped(typ byte) {
	if m == nil {
		return
	}
	m.submsgDropped.WithLabelValues(submsgTypeName(typ)).Inc()
}

func (m *Metrics) affinityEvictedN(n int) {
	if m == nil || n == 0 {
		return
	}
	m.affinityEvicted.Add(float64(n))
}

func (m *Metrics) proxyUniteMatched() {
	if m == nil {
		return
	}
	m.proxyUniteMatch.Inc()
}

func submsgTypeName(typ byte) string {
	switch typ {
	case submsgAlive:
		return "alive"
	case submsgHavePeer:
		return "have_peer"
	case submsgMulticastLike:
		return "multicast_like"
	case submsgCOM:
		return "com"
	case submsgProxyUnite:
		return "proxy_unite"
	case submsgProxySend:
		return "proxy_send"
	default:
		return "unknown"
	}
}
