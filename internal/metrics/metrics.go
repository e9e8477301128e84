// Package metrics 业务指标; prometheus 组件未启用时全部为空操作
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	prom "github.com/timelyrain333/bifang-sub000/infra/application/components/prometheus"
)

type set struct {
	dispatch       *prometheus.CounterVec
	executions     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	reaperRepaired *prometheus.CounterVec
	notifyDropped  *prometheus.CounterVec
	inflight       *prometheus.GaugeVec
}

var (
	mu     sync.Mutex
	owner  *prom.Component
	cached *set
)

func current() *set {
	c := prom.C()
	if c == nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if owner == c {
		return cached
	}
	cached = &set{
		dispatch:       c.NewCounter("bifang_dispatch_total", "Dispatch outcomes of scheduled and manual triggers.", []string{"outcome"}),
		executions:     c.NewCounter("bifang_executions_total", "Finished executions by plugin and status.", []string{"plugin", "status"}),
		duration:       c.NewHistogram("bifang_execution_duration_seconds", "Plugin run duration.", []string{"plugin"}, []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800}),
		retries:        c.NewCounter("bifang_retries_total", "Automatic retries scheduled after plugin errors.", []string{"plugin"}),
		reaperRepaired: c.NewCounter("bifang_reaper_repaired_total", "Executions force-failed by the stuck reaper.", nil),
		notifyDropped:  c.NewCounter("bifang_notify_dropped_total", "Notifications dropped from full subscriber queues.", nil),
		inflight:       c.NewGauge("bifang_dispatch_inflight", "Task ids currently dispatched by the scheduler.", nil),
	}
	owner = c
	return cached
}

func Dispatch(outcome string) {
	if s := current(); s != nil {
		s.dispatch.WithLabelValues(outcome).Inc()
	}
}

func Execution(plugin, status string, d time.Duration) {
	if s := current(); s != nil {
		s.executions.WithLabelValues(plugin, status).Inc()
		s.duration.WithLabelValues(plugin).Observe(d.Seconds())
	}
}

func Retry(plugin string) {
	if s := current(); s != nil {
		s.retries.WithLabelValues(plugin).Inc()
	}
}

func ReaperRepaired(n int) {
	if s := current(); s != nil && n > 0 {
		s.reaperRepaired.WithLabelValues().Add(float64(n))
	}
}

func NotifyDropped() {
	if s := current(); s != nil {
		s.notifyDropped.WithLabelValues().Inc()
	}
}

func Inflight(n int) {
	if s := current(); s != nil {
		s.inflight.WithLabelValues().Set(float64(n))
	}
}
