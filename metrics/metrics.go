package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	workflowLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsrag_workflow_latency_ms",
		Help:    "Latency of route executions in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
	}, []string{"route", "status"})

	stepLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsrag_step_latency_ms",
		Help:    "Latency of engine steps in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"step", "status"})

	routeDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_route_decision_total",
		Help: "Routing decisions by route",
	}, []string{"route"})

	externalDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_external_decision_total",
		Help: "External search decisions by reason",
	}, []string{"reason"})

	answerQuality = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "newsrag_answer_quality",
		Help:    "Engine quality score of final answers",
		Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
	})

	escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "newsrag_escalated_retry_total",
		Help: "Escalated retries by outcome (accepted/rejected/failed)",
	}, []string{"outcome"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// Handler serves the default registry with the newsrag collectors registered.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}

// ObserveWorkflow records one route execution.
func ObserveWorkflow(route string, success bool, d time.Duration) {
	ensureRegistered()
	workflowLatency.WithLabelValues(route, status(success)).Observe(float64(d.Milliseconds()))
}

// ObserveStep records one engine step attempt sequence.
func ObserveStep(step, stepStatus string, d time.Duration) {
	ensureRegistered()
	stepLatency.WithLabelValues(step, stepStatus).Observe(float64(d.Milliseconds()))
}

func IncRoute(route string) {
	ensureRegistered()
	routeDecisions.WithLabelValues(route).Inc()
}

// IncExternalDecision counts why external search did or did not run.
func IncExternalDecision(reason string) {
	ensureRegistered()
	externalDecisions.WithLabelValues(reason).Inc()
}

func ObserveQuality(score float64) {
	ensureRegistered()
	answerQuality.Observe(score)
}

func IncEscalation(outcome string) {
	ensureRegistered()
	escalations.WithLabelValues(outcome).Inc()
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		workflowLatency, stepLatency, routeDecisions, externalDecisions, answerQuality, escalations,
	}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
