package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegistrySink is the Prometheus-backed registry.MetricsSink, carrying
// counters for each observable membership transition plus a gauge for
// active monitors/peers and a histogram for multi_call fan-out, alongside
// the HTTP request instrumentation above.
type RegistrySink struct {
	scope string

	joined        prometheus.Counter
	updated       prometheus.Counter
	left          prometheus.Counter
	syncDropped   prometheus.Counter
	spuriousDeath prometheus.Counter
	monitors      prometheus.Gauge
	peers         prometheus.Gauge
	multiCallSize *prometheus.HistogramVec
}

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pgreg",
			Name:      "scope_transitions_total",
			Help:      "Observable membership transitions per scope.",
		},
		[]string{"scope", "kind"},
	)

	monitorsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgreg",
			Name:      "scope_monitors_active",
			Help:      "Outstanding liveness-monitor subscriptions per scope.",
		},
		[]string{"scope"},
	)

	peersUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgreg",
			Name:      "scope_peers_up",
			Help:      "Peers currently known up for a scope.",
		},
		[]string{"scope"},
	)

	multiCallMembers = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pgreg",
			Name:      "multi_call_members",
			Help:      "Group size, reply count, and bad count observed per multi_call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"scope", "result"},
	)
)

func init() {
	Registry.MustRegister(transitionsTotal, monitorsActive, peersUp, multiCallMembers)
}

// NewRegistrySink returns a MetricsSink that labels every series with
// scope.
func NewRegistrySink(scope string) *RegistrySink {
	return &RegistrySink{
		scope:         scope,
		joined:        transitionsTotal.WithLabelValues(scope, "joined"),
		updated:       transitionsTotal.WithLabelValues(scope, "updated"),
		left:          transitionsTotal.WithLabelValues(scope, "left"),
		syncDropped:   transitionsTotal.WithLabelValues(scope, "sync_dropped"),
		spuriousDeath: transitionsTotal.WithLabelValues(scope, "spurious_death"),
		monitors:      monitorsActive.WithLabelValues(scope),
		peers:         peersUp.WithLabelValues(scope),
		multiCallSize: multiCallMembers,
	}
}

func (s *RegistrySink) IncJoined()        { s.joined.Inc() }
func (s *RegistrySink) IncUpdated()       { s.updated.Inc() }
func (s *RegistrySink) IncLeft()          { s.left.Inc() }
func (s *RegistrySink) IncSyncDropped()   { s.syncDropped.Inc() }
func (s *RegistrySink) IncSpuriousDeath() { s.spuriousDeath.Inc() }
func (s *RegistrySink) SetMonitors(n int) { s.monitors.Set(float64(n)) }
func (s *RegistrySink) SetPeers(n int)    { s.peers.Set(float64(n)) }

func (s *RegistrySink) ObserveMultiCall(groupSize, replies, bad int) {
	s.multiCallSize.WithLabelValues(s.scope, "group_size").Observe(float64(groupSize))
	s.multiCallSize.WithLabelValues(s.scope, "replies").Observe(float64(replies))
	s.multiCallSize.WithLabelValues(s.scope, "bad").Observe(float64(bad))
}
