package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	duration     prometheus.Histogram
	conflicts    prometheus.Counter
	slot         prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "binaryoptions",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Submitted transactions by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "binaryoptions",
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Time from submission to commit or rejection.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binaryoptions",
			Subsystem: "ledger",
			Name:      "commit_conflicts_total",
			Help:      "Commits retried after a concurrent writer changed an account.",
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "binaryoptions",
			Subsystem: "ledger",
			Name:      "slot",
			Help:      "Number of transactions committed by this host.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.duration, m.conflicts, m.slot)
	}
	return m
}

func (m *Metrics) observe(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) setSlot(slot uint64) {
	if m == nil {
		return
	}
	m.slot.Set(float64(slot))
}
