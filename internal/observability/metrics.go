// Package observability wires tracing and Prometheus metrics for the service.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

// Pinger is satisfied by the graph store and the redis client adapter.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	turns        *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	resolutions  *prometheus.CounterVec
	recommends   *prometheus.CounterVec
	dependencyUp *prometheus.GaugeVec
	dependencyRT *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgchat_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgchat_api_request_duration_seconds",
			Help:    "API request latency by method/route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kgchat_api_inflight_requests",
			Help: "API requests currently being served.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgchat_turns_total",
			Help: "Conversation turns by mode/outcome.",
		}, []string{"mode", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgchat_turn_duration_seconds",
			Help:    "Conversation turn latency by mode.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"mode"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgchat_entity_resolutions_total",
			Help: "Entity mentions resolved, by result.",
		}, []string{"result"}),
		recommends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgchat_recommendation_events_total",
			Help: "Recommendation candidates by event (discovered, consumed, consume_miss).",
		}, []string{"event"}),
		dependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kgchat_dependency_up",
			Help: "1 when the last ping of a dependency succeeded.",
		}, []string{"dependency"}),
		dependencyRT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kgchat_dependency_ping_seconds",
			Help: "Latency of the last successful dependency ping.",
		}, []string{"dependency"}),
	}
	m.registry.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.turns, m.turnLatency, m.resolutions, m.recommends,
		m.dependencyUp, m.dependencyRT,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveTurn(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, outcome).Inc()
	m.turnLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveResolution(matched, unmatched int) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues("matched").Add(float64(matched))
	m.resolutions.WithLabelValues("unmatched").Add(float64(unmatched))
}

func (m *Metrics) ObserveRecommendation(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recommends.WithLabelValues(event).Add(float64(n))
}

// ObserveDependency pings p once and records the outcome under name.
func (m *Metrics) ObserveDependency(ctx context.Context, name string, p Pinger) error {
	start := time.Now()
	err := p.Ping(ctx)
	if m == nil {
		return err
	}
	if err != nil {
		m.dependencyUp.WithLabelValues(name).Set(0)
		return err
	}
	m.dependencyUp.WithLabelValues(name).Set(1)
	m.dependencyRT.WithLabelValues(name).Set(time.Since(start).Seconds())
	return nil
}

// StartDependencyCollector pings every dependency on each tick until ctx is done.
func (m *Metrics) StartDependencyCollector(ctx context.Context, log *logger.Logger, interval time.Duration, deps map[string]Pinger) {
	if m == nil || len(deps) == 0 {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, p := range deps {
					pctx, cancel := context.WithTimeout(ctx, interval/2)
					if err := m.ObserveDependency(pctx, name, p); err != nil && log != nil {
						log.Warn("metrics: dependency ping failed", "dependency", name, "error", err)
					}
					cancel()
				}
			}
		}
	}()
}
