package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_requests_total",
			Help: "Total number of analysis requests by overall status",
		},
		[]string{"status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finsight_request_duration_seconds",
			Help:    "Analysis request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	requestsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finsight_requests_active",
			Help: "Number of analysis requests currently executing",
		},
	)

	// Invocation metrics
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finsight_invocations_total",
			Help: "Total number of agent invocations by result status",
		},
		[]string{"agent", "status"},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finsight_invocation_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// Bus metrics
	busMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_bus_messages_sent_total",
			Help: "Total number of messages accepted into recipient queues",
		},
	)

	busMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_bus_messages_delivered_total",
			Help: "Total number of messages handed to matching subscriptions",
		},
	)

	busMessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finsight_bus_messages_dropped_total",
			Help: "Total number of undeliverable messages",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finsight_queue_depth",
			Help: "Current depth of each recipient's message queue",
		},
		[]string{"recipient"},
	)

	// Agent health metrics
	agentConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finsight_agent_consecutive_failures",
			Help: "Consecutive failure count per agent",
		},
		[]string{"agent"},
	)

	agentUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finsight_agent_up",
			Help: "1 when the agent is in the running state, 0 otherwise",
		},
		[]string{"agent"},
	)

	initOnce sync.Once
)

// InitMetrics registers every collector exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			requestsTotal,
			requestDuration,
			requestsActive,
			invocationsTotal,
			invocationDuration,
			busMessagesSent,
			busMessagesDelivered,
			busMessagesDropped,
			queueDepth,
			agentConsecutiveFailures,
			agentUp,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records one finished analysis request.
func RecordRequest(status string, duration time.Duration) {
	requestsTotal.WithLabelValues(status).Inc()
	requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveRequests marks a request as entering execution.
func IncActiveRequests() { requestsActive.Inc() }

// DecActiveRequests marks a request as leaving execution.
func DecActiveRequests() { requestsActive.Dec() }

// RecordInvocation records one settled agent x subject invocation.
func RecordInvocation(agent, status string, duration time.Duration) {
	invocationsTotal.WithLabelValues(agent, status).Inc()
	invocationDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// AddBusCounters feeds deltas from a bus stats snapshot into the cumulative
// bus counters. Callers are expected to track the previous snapshot and pass
// only the growth since then.
func AddBusCounters(sent, delivered, dropped uint64) {
	busMessagesSent.Add(float64(sent))
	busMessagesDelivered.Add(float64(delivered))
	busMessagesDropped.Add(float64(dropped))
}

// SetQueueDepth publishes one recipient's current queue depth.
func SetQueueDepth(recipient string, depth int) {
	queueDepth.WithLabelValues(recipient).Set(float64(depth))
}

// SetAgentHealth publishes an agent's health gauges.
func SetAgentHealth(agent string, running bool, consecutiveFailures int) {
	up := 0.0
	if running {
		up = 1.0
	}
	agentUp.WithLabelValues(agent).Set(up)
	agentConsecutiveFailures.WithLabelValues(agent).Set(float64(consecutiveFailures))
}
