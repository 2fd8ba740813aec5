// Package metrics 以 Prometheus 格式暴露对话、向导与提交任务的运行指标。
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"Agentrix-Chat/internal/conversation"
	"Agentrix-Chat/internal/task"
)

// Collector 汇总所有指标，注册在独立的 Registry 上。
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	intents      *prometheus.CounterVec
	wizards      *prometheus.CounterVec
	messages     *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	taskAttempts *prometheus.HistogramVec
}

// New 创建 Collector。namespace 为空时使用 agentrix。
func New(namespace string) *Collector {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "agentrix"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed.",
			},
			[]string{"handler", "method", "code"},
		),
		httpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_errors_total",
				Help:      "Total number of HTTP requests that resulted in a server error.",
			},
			[]string{"handler", "method"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method"},
		),
		intents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "intents_total",
				Help:      "Classified intents by kind and classification source.",
			},
			[]string{"kind", "source"},
		),
		wizards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wizard",
				Name:      "transitions_total",
				Help:      "Guided wizard state transitions.",
			},
			[]string{"kind", "transition"},
		),
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "messages_total",
				Help:      "Messages appended to conversations by role.",
			},
			[]string{"role"},
		),
		tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "submission",
				Name:      "tasks_finished_total",
				Help:      "Submission tasks that reached a final state.",
			},
			[]string{"wizard", "status"},
		),
		taskAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "submission",
				Name:      "task_attempts",
				Help:      "Attempts consumed by finished submission tasks.",
				Buckets:   []float64{1, 2, 3, 5, 8},
			},
			[]string{"wizard"},
		),
	}
}

// Registry 返回底层的 Prometheus Registry。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTPRequest 记录一次 HTTP 请求。
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		c.httpErrors.WithLabelValues(handler, method).Inc()
	}
	c.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// IntentClassified 实现 conversation.Metrics。
func (c *Collector) IntentClassified(kind, source string) {
	c.intents.WithLabelValues(kind, source).Inc()
}

// WizardTransition 实现 conversation.Metrics。
func (c *Collector) WizardTransition(kind, transition string) {
	c.wizards.WithLabelValues(kind, transition).Inc()
}

// MessageAppended 实现 conversation.Metrics。
func (c *Collector) MessageAppended(role string) {
	c.messages.WithLabelValues(role).Inc()
}

// TaskFinished 实现 task.Observer。
func (c *Collector) TaskFinished(wizardKind string, status task.Status, attempts int) {
	c.tasks.WithLabelValues(wizardKind, string(status)).Inc()
	c.taskAttempts.WithLabelValues(wizardKind).Observe(float64(attempts))
}

var (
	_ conversation.Metrics = (*Collector)(nil)
	_ task.Observer        = (*Collector)(nil)
)
