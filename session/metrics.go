package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels for Metrics.WriteErrors.
const (
	OpOpen         = "open"
	OpHeartbeat    = "heartbeat"
	OpUserLastSeen = "user_last_seen"
	OpNavigate     = "navigate"
	OpClose        = "close"
)

// Metrics are shared by every Recorder in a process.
type Metrics struct {
	Opened      prometheus.Counter
	Closed      prometheus.Counter
	WriteErrors *prometheus.CounterVec
}

// NewMetrics registers session metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Opened: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "opsdash",
			Name:      "sessions_opened_total",
			Help:      "The number of session rows created.",
		}),
		Closed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "opsdash",
			Name:      "sessions_closed_total",
			Help:      "The number of session close requests that reached the store successfully.",
		}),
		WriteErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsdash",
			Name:      "session_write_errors_total",
			Help:      "The number of session writes that failed and were skipped, by operation.",
		}, []string{"op"}),
	}
}
