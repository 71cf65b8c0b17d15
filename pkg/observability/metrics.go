package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the promptflow collectors.
type Metrics struct {
	NodeRuns     *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	JobStatus    *prometheus.CounterVec
	ActiveNodes  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptflow",
			Name:      "node_runs_total",
			Help:      "Node executions by node type and outcome.",
		}, []string{"node_type", "failed"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution time by node type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_type"}),
		JobStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptflow",
			Name:      "job_status_changes_total",
			Help:      "Job status transitions by target status.",
		}, []string{"status"}),
		ActiveNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "promptflow",
			Name:      "active_nodes",
			Help:      "Nodes currently executing.",
		}),
	}
	for _, c := range []prometheus.Collector{m.NodeRuns, m.NodeDuration, m.JobStatus, m.ActiveNodes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks records node and job events.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) {
			m.ActiveNodes.Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.ActiveNodes.Dec()
			m.NodeRuns.WithLabelValues(e.NodeType, strconv.FormatBool(e.Failed)).Inc()
			m.NodeDuration.WithLabelValues(e.NodeType).Observe(e.Duration.Seconds())
		},
		OnJobStatus: func(_ context.Context, e *domain.JobEvent) {
			m.JobStatus.WithLabelValues(string(e.Status)).Inc()
		},
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
