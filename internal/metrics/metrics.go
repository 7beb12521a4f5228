package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salon_queue"

// Known connection statuses, kept in sync with connection.Status values.
var statuses = []string{"disconnected", "connecting", "connected", "reconnecting", "fallback"}

var (
	once sync.Once

	connectionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current live-channel status, 0 for the others.",
		},
		[]string{"status"},
	)

	connectionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Failed handshakes and abnormal closes of the live channel.",
		},
	)

	reconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Connection attempts started by the backoff timer.",
		},
	)

	fallbackActivations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_activations_total",
			Help:      "Times the reconnect limit was reached and polling took over.",
		},
	)

	pushMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Push frames by topic and result.",
		},
		[]string{"topic", "result"},
	)

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "REST pull refreshes by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Entries in the current queue view.",
		},
	)

	averageWait = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_wait_minutes",
			Help:      "Average wait reported by the latest stats snapshot.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			connectionStatus,
			connectionFailures,
			reconnectAttempts,
			fallbackActivations,
			pushMessages,
			refreshes,
			queueLength,
			averageWait,
		)
	})
}

// SetConnectionStatus marks status as the current one.
func SetConnectionStatus(status string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		connectionStatus.WithLabelValues(s).Set(v)
	}
}

// IncConnectionFailure counts a failed attempt or abnormal close.
func IncConnectionFailure() {
	connectionFailures.Inc()
}

// IncReconnectAttempt counts a timer-driven attempt.
func IncReconnectAttempt() {
	reconnectAttempts.Inc()
}

// IncFallback counts a switch into fallback.
func IncFallback() {
	fallbackActivations.Inc()
}

// Push results.
const (
	PushApplied   = "applied"
	PushMalformed = "malformed"
	PushIgnored   = "ignored"
)

// IncPush counts a push frame for topic.
func IncPush(topic, result string) {
	pushMessages.WithLabelValues(topic, result).Inc()
}

// IncRefresh counts a pull refresh.
func IncRefresh(trigger string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	refreshes.WithLabelValues(trigger, result).Inc()
}

// SetQueueLength records the size of the current view.
func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

// SetAverageWait records the latest average wait.
func SetAverageWait(minutes float64) {
	averageWait.Set(minutes)
}
