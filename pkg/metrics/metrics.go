// Package metrics exposes pipeline and sync counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meshbook"

type Metrics struct {
	Registry *prometheus.Registry

	operations   *prometheus.CounterVec
	batchSize    prometheus.Histogram
	batchApply   prometheus.Histogram
	matches      prometheus.Counter
	executedQty  prometheus.Counter
	bookOrders   *prometheus.GaugeVec
	syncEnvelope *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations applied by the pipeline, by kind and result",
		}, []string{"kind", "result"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Operations per applied batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		batchApply: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_apply_seconds",
			Help:      "Time spent sorting and applying one batch",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		matches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Crossing steps executed by the matching engine",
		}),
		executedQty: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executed_quantity_total",
			Help:      "Quantity traded across all matches",
		}),
		bookOrders: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_orders",
			Help:      "Resting orders per side after the last batch",
		}, []string{"side"}),
		syncEnvelope: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_envelopes_total",
			Help:      "Broadcast envelopes by direction and action",
		}, []string{"direction", "action"}),
	}
}

func (m *Metrics) OperationApplied(kind, result string) {
	m.operations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Matched(fills int, executed int64) {
	m.matches.Add(float64(fills))
	m.executedQty.Add(float64(executed))
}

func (m *Metrics) BatchApplied(size int, took time.Duration) {
	m.batchSize.Observe(float64(size))
	m.batchApply.Observe(took.Seconds())
}

func (m *Metrics) BookSize(bids, asks int) {
	m.bookOrders.WithLabelValues("buy").Set(float64(bids))
	m.bookOrders.WithLabelValues("sell").Set(float64(asks))
}

func (m *Metrics) Envelope(direction, action string) {
	m.syncEnvelope.WithLabelValues(direction, action).Inc()
}
