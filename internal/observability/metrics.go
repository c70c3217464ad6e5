// Package observability 同步与信誉指标（私有 prometheus registry）以及健康状态。
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Metrics 计数器集合；nil 接收者的方法全部空操作
type Metrics struct {
	reg *prometheus.Registry

	syncRuns          *prometheus.CounterVec
	syncErrors        *prometheus.CounterVec
	activitiesCreated *prometheus.CounterVec
	reputationUpdates *prometheus.CounterVec
}

// NewMetrics 创建并注册计数器
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync invocations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		syncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Per-repository sync errors recorded in results.",
		}, []string{"kind"}),
		activitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_created_total",
			Help:      "Activities newly written to the ledger.",
		}, []string{"type"}),
		reputationUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reputation_updates_total",
			Help:      "Task status changes handled by the reputation engine.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(m.syncRuns, m.syncErrors, m.activitiesCreated, m.reputationUpdates)
	return m
}

// Registry 底层 registry（测试用）
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SyncRun(kind, outcome string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SyncError(kind string) {
	if m == nil {
		return
	}
	m.syncErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ActivityCreated(activityType string) {
	if m == nil {
		return
	}
	m.activitiesCreated.WithLabelValues(activityType).Inc()
}

func (m *Metrics) ReputationUpdate(outcome string) {
	if m == nil {
		return
	}
	m.reputationUpdates.WithLabelValues(outcome).Inc()
}
