package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange outcomes used as the outcome label.
const (
	OutcomeOK        = "ok"
	OutcomeNoReply   = "no_reply"
	OutcomeSent      = "sent"
	OutcomeBadReply  = "bad_reply"
	OutcomeSendError = "send_error"
	OutcomeEncode    = "encode_error"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hipotlink",
			Subsystem: "link",
			Name:      "exchanges_total",
			Help:      "Packet exchanges by channel and outcome.",
		},
		[]string{"channel", "packet", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hipotlink",
			Subsystem: "link",
			Name:      "exchange_duration_seconds",
			Help:      "Packet exchange duration in seconds, lock wait included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"channel", "packet", "outcome"},
	)
	replyBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hipotlink",
			Subsystem: "link",
			Name:      "reply_bytes_total",
			Help:      "Reply bytes received by channel.",
		},
		[]string{"channel"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hipotlink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hipotlink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, replyBytes, httpRequests, httpDuration)
	})
}

func RecordExchange(channel, packet, outcome string, received int, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(channel, packet, outcome).Inc()
	exchangeDuration.WithLabelValues(channel, packet, outcome).Observe(duration.Seconds())
	if received > 0 {
		replyBytes.WithLabelValues(channel).Add(float64(received))
	}
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
