// Package metrics exposes session and tool counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpggio/deskset/internal/domain/session"
)

// Collector records registry outcomes and MCP tool calls.
type Collector struct {
	registry *prometheus.Registry

	sessionOps      *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	runningJobsFunc prometheus.GaugeFunc
}

// New creates a collector with its own registry. running may be nil.
func New(running func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskset_session_operations_total",
				Help: "Total number of session operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskset_mcp_tool_calls_total",
				Help: "Total number of MCP tool calls",
			},
			[]string{"tool", "status"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskset_mcp_tool_call_duration_seconds",
				Help:    "MCP tool call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
	c.registry.MustRegister(c.sessionOps, c.toolCalls, c.toolDuration)

	if running != nil {
		c.runningJobsFunc = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "deskset_generation_jobs_running",
				Help: "Number of generation jobs currently running",
			},
			func() float64 { return float64(running()) },
		)
		c.registry.MustRegister(c.runningJobsFunc)
	}
	return c
}

// Observe implements session.Observer.
func (c *Collector) Observe(op string, outcome session.Outcome) {
	c.sessionOps.WithLabelValues(op, string(outcome)).Inc()
}

// RecordToolCall records one MCP tool call.
func (c *Collector) RecordToolCall(tool string, failed bool, duration time.Duration) {
	status := "success"
	if failed {
		status = "error"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// SessionOps exposes the operation counter, mainly for tests.
func (c *Collector) SessionOps() *prometheus.CounterVec {
	return c.sessionOps
}

// ToolCalls exposes the tool call counter, mainly for tests.
func (c *Collector) ToolCalls() *prometheus.CounterVec {
	return c.toolCalls
}

// Handler serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
