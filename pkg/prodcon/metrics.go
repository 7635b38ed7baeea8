package prodcon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by sessions that share it.
type Metrics struct {
	transactions *prometheus.CounterVec
	recoveries   prometheus.Counter
	waitSeconds  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg, if reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodcon",
			Name:      "operations_total",
			Help:      "Begin and End calls by role, operation and result.",
		}, []string{"role", "op", "result"}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prodcon",
			Name:      "stale_segment_recoveries_total",
			Help:      "Recovery attempts after the producer failed to create the segment.",
		}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "prodcon",
			Name:      "slot_wait_seconds",
			Help:      "Time spent blocked waiting for the slot semaphore.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"role"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.transactions, m.recoveries, m.waitSeconds} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
