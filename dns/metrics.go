package dns

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records provider query outcomes. A nil *Metrics records nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the query metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posture",
			Subsystem: "dns",
			Name:      "provider_queries_total",
			Help:      "TXT queries sent to each DNS provider, by outcome.",
		}, []string{"provider", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "posture",
			Subsystem: "dns",
			Name:      "provider_query_duration_seconds",
			Help:      "Latency of TXT queries to each DNS provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	reg.MustRegister(m.queries, m.duration)
	return m
}

func (m *Metrics) observe(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(provider, outcomeLabel(err)).Inc()
	m.duration.WithLabelValues(provider).Observe(d.Seconds())
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "answer"
	case IsNotFound(err):
		return "nxdomain"
	case IsTimeout(err):
		return "timeout"
	case IsServFail(err):
		return "servfail"
	default:
		return "error"
	}
}
