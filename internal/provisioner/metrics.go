package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Step results
const (
	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

// Metrics records workflow progress on a private registry so a one-shot CLI
// run can push it to a Pushgateway. A nil *Metrics records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	stepsTotal         *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	validationDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "awseb_https",
				Subsystem: "workflow",
				Name:      "steps_total",
				Help:      "Total number of workflow state transitions by result",
			},
			[]string{"workflow", "step", "result"},
		),
		workflowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "awseb_https",
				Subsystem: "workflow",
				Name:      "duration_seconds",
				Help:      "Duration of a workflow run in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
			[]string{"workflow", "result"},
		),
		validationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "awseb_https",
				Subsystem: "certificate",
				Name:      "validation_seconds",
				Help:      "Time from certificate request until it was validated",
				Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43min
			},
		),
	}
	m.Registry.MustRegister(m.stepsTotal, m.workflowDuration, m.validationDuration)
	return m
}

func (m *Metrics) recordStep(workflow string, step State, result string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(workflow, string(step), result).Inc()
}

func (m *Metrics) observeWorkflow(workflow string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	m.workflowDuration.WithLabelValues(workflow, result).Observe(d.Seconds())
}

func (m *Metrics) observeValidation(d time.Duration) {
	if m == nil {
		return
	}
	m.validationDuration.Observe(d.Seconds())
}

// Push sends the collected metrics to a Prometheus Pushgateway
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
