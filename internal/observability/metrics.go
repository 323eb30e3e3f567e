package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runtimeMetrics struct {
	activeSessions prometheus.Gauge

	turnsTotal          *prometheus.CounterVec
	interactionsTotal   *prometheus.CounterVec
	interactionDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	handoffsTotal *prometheus.CounterVec

	inferenceTotal    *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	inferenceRetries  *prometheus.CounterVec

	tokensTotal  *prometheus.CounterVec
	costTotalUSD prometheus.Counter

	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *runtimeMetrics
)

func getMetrics() *runtimeMetrics {
	metricsOnce.Do(func() {
		m := &runtimeMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "turns_total",
					Help: "Total turns by terminal state.",
				},
				[]string{"state"},
			),
			interactionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interactions_total",
					Help: "Total interactions by agent.",
				},
				[]string{"agent"},
			),
			interactionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "interaction_duration_seconds",
					Help:    "Interaction duration in seconds by agent.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"agent"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			handoffsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "handoffs_total",
					Help: "Total agent handoffs by source and target.",
				},
				[]string{"from", "to"},
			),
			inferenceTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inference_total",
					Help: "Total inference calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			inferenceDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "inference_duration_seconds",
					Help:    "Inference call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			inferenceRetries: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inference_retries_total",
					Help: "Total inference retries by provider.",
				},
				[]string{"provider"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tokens_total",
					Help: "Total tokens consumed by direction (input/output).",
				},
				[]string{"direction"},
			),
			costTotalUSD: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "cost_total_usd",
					Help: "Aggregate model spend in USD.",
				},
			),
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current prompt queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.turnsTotal,
			m.interactionsTotal,
			m.interactionDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.handoffsTotal,
			m.inferenceTotal,
			m.inferenceDuration,
			m.inferenceRetries,
			m.tokensTotal,
			m.costTotalUSD,
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler exposes the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordTurn(state string) {
	getMetrics().turnsTotal.WithLabelValues(state).Inc()
}

func RecordInteraction(agent string, duration time.Duration) {
	m := getMetrics()
	m.interactionsTotal.WithLabelValues(agent).Inc()
	m.interactionDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordHandoff(from, to string) {
	getMetrics().handoffsTotal.WithLabelValues(from, to).Inc()
}

func RecordInference(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.inferenceTotal.WithLabelValues(provider, status).Inc()
	m.inferenceDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordInferenceRetry(provider string) {
	getMetrics().inferenceRetries.WithLabelValues(provider).Inc()
}

func AddTokens(input, output int) {
	m := getMetrics()
	m.tokensTotal.WithLabelValues("input").Add(float64(input))
	m.tokensTotal.WithLabelValues("output").Add(float64(output))
}

func AddCost(usd float64) {
	if usd < 0 {
		return
	}
	getMetrics().costTotalUSD.Add(usd)
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, success bool, queueSize int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.dequeueTotal.WithLabelValues(lane, status).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	getMetrics().queueSize.WithLabelValues(lane).Set(float64(queueSize))
}
