package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the token API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	rotationTotal   *prometheus.CounterVec
	theftTotal      prometheus.Counter
	theftFamilySize prometheus.Histogram
	purgedTotal     prometheus.Counter
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

	rotationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_rotations_total",
		Help: "Refresh token rotation attempts by outcome",
	}, []string{"outcome"})

	theftTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_theft_detected_total",
		Help: "Total refresh token reuse detections",
	})

	theftFamilySize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "token_theft_family_size",
		Help:    "Number of tokens revoked per theft cascade",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
	})

	purgedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_purged_total",
		Help: "Total expired revoked tokens garbage-collected",
	})

	registry.MustRegister(requestDuration, requestTotal, rotationTotal, theftTotal, theftFamilySize, purgedTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rotationTotal:   rotationTotal,
		theftTotal:      theftTotal,
		theftFamilySize: theftFamilySize,
		purgedTotal:     purgedTotal,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveRotation counts one rotation attempt by outcome
// (ok, invalid, expired, inactive, theft).
func (m *MetricsService) ObserveRotation(outcome string) {
	if m == nil {
		return
	}
	m.rotationTotal.WithLabelValues(outcome).Inc()
}

// ObserveTheftCascade counts a reuse detection and the cascade width.
func (m *MetricsService) ObserveTheftCascade(familySize int64) {
	if m == nil {
		return
	}
	m.theftTotal.Inc()
	m.theftFamilySize.Observe(float64(familySize))
}

// ObservePurge counts garbage-collected token records.
func (m *MetricsService) ObservePurge(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purgedTotal.Add(float64(count))
}
