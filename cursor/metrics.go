package cursor

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records cursor activity per cursor kind.
type Metrics struct {
	created *prometheus.CounterVec
	batches *prometheus.CounterVec
	rows    *prometheus.CounterVec
	deleted *prometheus.CounterVec
	open    *prometheus.GaugeVec
}

// NewMetrics creates the cursor collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "cursor",
			Name:      "created_total",
			Help:      "number of cursors created.",
		}, []string{"kind"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "cursor",
			Name:      "batches_total",
			Help:      "number of batches received, including the first.",
		}, []string{"kind"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "cursor",
			Name:      "rows_total",
			Help:      "number of rows received.",
		}, []string{"kind"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aql",
			Subsystem: "cursor",
			Name:      "deleted_total",
			Help:      "number of server-side cursors released explicitly.",
		}, []string{"kind"}),
		open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aql",
			Subsystem: "cursor",
			Name:      "open",
			Help:      "number of cursors currently holding a server-side id.",
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "unable to register cursor metric")
		}
	}
	return m, nil
}

// Collectors returns every collector for custom registration
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.created, m.batches, m.rows, m.deleted, m.open}
}

func (m *Metrics) observeBatch(kind string, rows int, first bool) {
	if m == nil {
		return
	}
	if first {
		m.created.WithLabelValues(kind).Inc()
	}
	m.batches.WithLabelValues(kind).Inc()
	m.rows.WithLabelValues(kind).Add(float64(rows))
}

func (m *Metrics) observeOpen(kind string) {
	if m == nil {
		return
	}
	m.open.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeReleased(kind string, deleted bool) {
	if m == nil {
		return
	}
	m.open.WithLabelValues(kind).Dec()
	if deleted {
		m.deleted.WithLabelValues(kind).Inc()
	}
}
