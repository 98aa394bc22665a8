package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FlowTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientops_flow_total",
		Help: "Lifecycle flows finished, by flow and result",
	}, []string{"flow", "result"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clientops_step_duration_seconds",
		Help:    "Duration of lifecycle steps",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"step"})

	ToolFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clientops_tool_failures_total",
		Help: "Non-zero exits of external tools",
	}, []string{"tool"})
)

func init() {
	prometheus.MustRegister(FlowTotal, StepDuration, ToolFailures)
}

// Flow result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

func ObserveFlow(flow string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	FlowTotal.WithLabelValues(flow, result).Inc()
}

func ObserveStep(step string, d time.Duration) {
	StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func ObserveToolFailure(tool string) {
	ToolFailures.WithLabelValues(tool).Inc()
}
