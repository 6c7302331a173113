// Package metrics declares SandDB's Prometheus instrumentation. Grounded
// on the teacher's pkg/metrics/metrics.go (a struct of prometheus
// Collectors registered against a caller-supplied Registerer).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the engine updates during normal
// operation.
type Metrics struct {
	Puts       prometheus.Counter
	Deletes    prometheus.Counter
	Gets       prometheus.Counter
	GetHits    prometheus.Counter
	GetMisses  prometheus.Counter
	Flushes    prometheus.Counter
	FlushBytes prometheus.Counter

	Compactions      prometheus.Counter
	CompactionBytes  prometheus.Counter
	CompactionErrors prometheus.Counter

	MemtableBytes prometheus.Gauge
	FlushQueueLen prometheus.Gauge
	LevelTables   *prometheus.GaugeVec
	LevelBytes    *prometheus.GaugeVec
}

// New constructs every collector with the sanddb_ namespace prefix. It
// does not register them; call Register to do that against a specific
// Registerer, so tests can use a fresh one instead of the global default.
func New() *Metrics {
	ns := "sanddb"
	return &Metrics{
		Puts:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "puts_total"}),
		Deletes:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "deletes_total"}),
		Gets:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "gets_total"}),
		GetHits:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "get_hits_total"}),
		GetMisses:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "get_misses_total"}),
		Flushes:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "flushes_total"}),
		FlushBytes: prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "flush_bytes_total"}),

		Compactions:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "compactions_total"}),
		CompactionBytes:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "compaction_bytes_total"}),
		CompactionErrors: prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "compaction_errors_total"}),

		MemtableBytes: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "memtable_bytes"}),
		FlushQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "flush_queue_length"}),
		LevelTables:   prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "level_tables"}, []string{"level"}),
		LevelBytes:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "level_bytes"}, []string{"level"}),
	}
}

// Register adds every collector to r. Called once, typically right after
// New, against either prometheus.DefaultRegisterer or a test-local
// registry.
func (m *Metrics) Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.Puts, m.Deletes, m.Gets, m.GetHits, m.GetMisses,
		m.Flushes, m.FlushBytes,
		m.Compactions, m.CompactionBytes, m.CompactionErrors,
		m.MemtableBytes, m.FlushQueueLen, m.LevelTables, m.LevelBytes,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
