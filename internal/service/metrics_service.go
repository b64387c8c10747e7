package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the lifecycle engine. All methods are safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	milestoneEvents *prometheus.CounterVec
	catalogLoads    *prometheus.CounterVec
	queueJobs       *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_transitions_total",
		Help: "Status transitions attempted, by trigger and outcome",
	}, []string{"trigger", "outcome"})

	guardDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_guard_decisions_total",
		Help: "Action guard evaluations, by action and decision",
	}, []string{"action", "allowed"})

	milestoneEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_milestone_events_total",
		Help: "Financial milestone events, by milestone and outcome",
	}, []string{"milestone", "outcome"})

	catalogLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_catalog_loads_total",
		Help: "Rule catalog loads, by source and result",
	}, []string{"source", "result"})

	queueJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_queue_jobs_total",
		Help: "Queued milestone deliveries, by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, guardDecisions, milestoneEvents, catalogLoads, queueJobs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitions:     transitions,
		guardDecisions:  guardDecisions,
		milestoneEvents: milestoneEvents,
		catalogLoads:    catalogLoads,
		queueJobs:       queueJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTransition counts a transition attempt.
func (m *MetricsService) ObserveTransition(trigger, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(trigger, outcome).Inc()
}

// ObserveGuardDecision counts a guard evaluation.
func (m *MetricsService) ObserveGuardDecision(action string, allowed bool) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(action, fmt.Sprintf("%t", allowed)).Inc()
}

// ObserveMilestoneEvent counts a milestone delivery.
func (m *MetricsService) ObserveMilestoneEvent(milestone, outcome string) {
	if m == nil {
		return
	}
	m.milestoneEvents.WithLabelValues(milestone, outcome).Inc()
}

// ObserveCatalogLoad counts a catalog load attempt.
func (m *MetricsService) ObserveCatalogLoad(source string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.catalogLoads.WithLabelValues(source, result).Inc()
}

// ObserveQueueJob counts a processed queue job.
func (m *MetricsService) ObserveQueueJob(result string) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(result).Inc()
}
