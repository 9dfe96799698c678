package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every Client in a process.
type Metrics struct {
	RostersActive prometheus.Gauge
	PublishErrors prometheus.Counter
}

// NewMetrics registers presence metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RostersActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "opsdash",
			Subsystem: "presence",
			Name:      "rosters_active",
			Help:      "The number of presence clients currently joined to a tenant channel.",
		}),
		PublishErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "opsdash",
			Subsystem: "presence",
			Name:      "publish_errors_total",
			Help:      "The number of presence joins and publishes that failed and were skipped.",
		}),
	}
}
