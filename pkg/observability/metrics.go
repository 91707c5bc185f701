// Package observability provides Prometheus metrics, HTTP middleware and
// the OpenTelemetry tracer for the tabula gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for model inference
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets covers fragment executions from 1ms to 60s.
var SandboxBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60}

var (
	// RequestsTotal counts HTTP requests by method, status class and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks active SSE progress streams.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabula_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ModelRequestsTotal counts chat-completion calls.
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_model_requests_total",
			Help: "Model requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ModelLatency records chat-completion latency in seconds.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_model_latency_seconds",
			Help:    "Model latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ModelTokensTotal counts tokens by direction (input/output).
	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_model_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ModelRetriesTotal counts retried model calls.
	ModelRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_model_retries_total",
			Help: "Model call retries",
		},
		[]string{"provider"},
	)

	// RouterDecisionsTotal counts intent decisions by tool and source.
	RouterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_router_decisions_total",
			Help: "Intent routing decisions",
		},
		[]string{"tool", "source"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolExecutionDuration records tool execution time in seconds.
	ToolExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_tool_execution_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: LLMBuckets,
		},
		[]string{"tool_name"},
	)

	// AgentRoundsTotal counts agent loop rounds by outcome.
	AgentRoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_agent_rounds_total",
			Help: "Agent loop rounds",
		},
		[]string{"outcome"},
	)

	// AgentTerminationsTotal counts finished agent loops by final status.
	AgentTerminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_agent_terminations_total",
			Help: "Agent loop terminations",
		},
		[]string{"status"},
	)

	// SandboxExecutionsTotal counts fragment executions by executor and outcome.
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"mode", "status"},
	)

	// SandboxExecutionDuration records fragment execution time in seconds.
	SandboxExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_sandbox_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: SandboxBuckets,
		},
		[]string{"mode"},
	)

	// AnalysesTotal counts completed analyses by tool and status.
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_analyses_total",
			Help: "Analyses",
		},
		[]string{"tool", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ModelRequestsTotal,
		ModelLatency,
		ModelTokensTotal,
		ModelRetriesTotal,
		RouterDecisionsTotal,
		ToolExecutionsTotal,
		ToolExecutionDuration,
		AgentRoundsTotal,
		AgentTerminationsTotal,
		SandboxExecutionsTotal,
		SandboxExecutionDuration,
		AnalysesTotal,
		RateLimitRejectedTotal,
	)
}
