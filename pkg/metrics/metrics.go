package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义:
// - xdeploy_steps_total: 配方步骤执行次数 (按配方/步骤/结果)
// - xdeploy_step_duration_seconds: 步骤耗时
// - xdeploy_tasks_total: 队列任务执行次数 (按任务/结果)
// - xdeploy_task_duration_seconds: 任务耗时
var (
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "xdeploy_steps_total", Help: "配方步骤执行次数"},
		[]string{"recipe", "step", "status"},
	)
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "xdeploy_step_duration_seconds", Help: "配方步骤耗时 (秒)", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12)},
		[]string{"recipe", "step"},
	)
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "xdeploy_tasks_total", Help: "队列任务执行次数"},
		[]string{"task", "status"},
	)
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "xdeploy_task_duration_seconds", Help: "队列任务耗时 (秒)", Buckets: prometheus.DefBuckets},
		[]string{"task"},
	)
)

func init() {
	prometheus.MustRegister(StepsTotal, StepDuration, TasksTotal, TaskDuration)
}

func ObserveStep(recipe, step, status string, d time.Duration) {
	StepsTotal.WithLabelValues(recipe, step, status).Inc()
	StepDuration.WithLabelValues(recipe, step).Observe(d.Seconds())
}

func ObserveTask(task, status string, d time.Duration) {
	TasksTotal.WithLabelValues(task, status).Inc()
	TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// Handler 标准 Prometheus 暴露处理器
func Handler() http.Handler { return promhttp.Handler() }
