package registry

// MetricsSink receives counts of the observable transitions and fan-out
// operations a Scope produces. internal/telemetry provides the
// Prometheus-backed implementation used by cmd/node; tests and anything
// that doesn't care about metrics get the noop sink.
type MetricsSink interface {
	IncJoined()
	IncUpdated()
	IncLeft()
	IncSyncDropped()
	IncSpuriousDeath()
	ObserveMultiCall(groupSize, replies, bad int)
	SetMonitors(n int)
	SetPeers(n int)
}

type scopeMetrics struct {
	sink MetricsSink
}

func (m *scopeMetrics) joined()        { m.sink.IncJoined() }
func (m *scopeMetrics) updated()       { m.sink.IncUpdated() }
func (m *scopeMetrics) left()          { m.sink.IncLeft() }
func (m *scopeMetrics) syncDropped()   { m.sink.IncSyncDropped() }
func (m *scopeMetrics) spuriousDeath() { m.sink.IncSpuriousDeath() }
func (m *scopeMetrics) multiCall(groupSize, replies, bad int) {
	m.sink.ObserveMultiCall(groupSize, replies, bad)
}

type noopMetrics struct{}

func (noopMetrics) IncJoined()                                   {}
func (noopMetrics) IncUpdated()                                  {}
func (noopMetrics) IncLeft()                                     {}
func (noopMetrics) IncSyncDropped()                              {}
func (noopMetrics) IncSpuriousDeath()                            {}
func (noopMetrics) ObserveMultiCall(groupSize, replies, bad int) {}
func (noopMetrics) SetMonitors(n int)                            {}
func (noopMetrics) SetPeers(n int)                               {}
