package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Prometheus registry and the instruments the tool
// executor, MCP client, execution loop, and event bus report into.
type Collector struct {
	registry *prometheus.Registry

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	mcpRequests    *prometheus.CounterVec
	loopSteps      prometheus.Counter
	busEvents      prometheus.Counter
	busDropped     prometheus.Counter
}

func newCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.toolExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sage",
		Subsystem: "tools",
		Name:      "executions_total",
		Help:      "Tool executions by tool name and outcome.",
	}, []string{"tool", "outcome"})

	c.toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sage",
		Subsystem: "tools",
		Name:      "execution_seconds",
		Help:      "Tool execution wall time.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10),
	}, []string{"tool"})

	c.mcpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sage",
		Subsystem: "mcp",
		Name:      "requests_total",
		Help:      "MCP requests by server and outcome.",
	}, []string{"server", "outcome"})

	c.loopSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sage",
		Subsystem: "agent",
		Name:      "steps_total",
		Help:      "Execution loop steps driven.",
	})

	c.busEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sage",
		Subsystem: "eventbus",
		Name:      "events_total",
		Help:      "Events published to the bus.",
	})

	c.busDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sage",
		Subsystem: "eventbus",
		Name:      "events_dropped_total",
		Help:      "Events overwritten before any reader saw them.",
	})

	c.registry.MustRegister(c.toolExecutions, c.toolDuration, c.mcpRequests, c.loopSteps, c.busEvents, c.busDropped)
	return c
}

// Handler serves the collector's registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordToolExecution counts one tool execution. Nil-safe: a no-op until
// InitTelemetry has run.
func RecordToolExecution(tool string, success bool, elapsed time.Duration) {
	c := telemetry.Load()
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	c.toolExecutions.WithLabelValues(tool, outcome).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordMCPRequest counts one MCP request against a server.
func RecordMCPRequest(server string, err error) {
	c := telemetry.Load()
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.mcpRequests.WithLabelValues(server, outcome).Inc()
}

// RecordLoopStep counts one execution loop step.
func RecordLoopStep() {
	if c := telemetry.Load(); c != nil {
		c.loopSteps.Inc()
	}
}

// RecordBusEvent counts one published event, and whether it displaced an
// unread predecessor.
func RecordBusEvent(dropped bool) {
	c := telemetry.Load()
	if c == nil {
		return
	}
	c.busEvents.Inc()
	if dropped {
		c.busDropped.Inc()
	}
}
