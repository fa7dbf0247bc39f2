package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the
// cache and the enrollment/payment lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentsCreated   *prometheus.CounterVec
	enrollmentDecisions  *prometheus.CounterVec
	installmentsApproved prometheus.Counter
	approvalConflicts    prometheus.Counter
	cascades             prometheus.Counter
	vouchers             *prometheus.CounterVec
	notifications        *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Enrollments created, by offering type",
	}, []string{"type"})

	enrollmentDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment status transitions, by trigger and target status",
	}, []string{"trigger", "status"})

	installmentsApproved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "installments_approved_total",
		Help: "Installments moved to paid",
	})

	approvalConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "installment_approval_conflicts_total",
		Help: "Approvals rejected because the installment was already paid",
	})

	cascades := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_cascades_total",
		Help: "Enrollments accepted automatically after the last installment was paid",
	})

	vouchers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vouchers_total",
		Help: "Voucher submissions and rejections",
	}, []string{"action"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification dispatch outcomes",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		enrollmentsCreated, enrollmentDecisions, installmentsApproved, approvalConflicts, cascades, vouchers, notifications,
		goroutines,
	)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		enrollmentsCreated:   enrollmentsCreated,
		enrollmentDecisions:  enrollmentDecisions,
		installmentsApproved: installmentsApproved,
		approvalConflicts:    approvalConflicts,
		cascades:             cascades,
		vouchers:             vouchers,
		notifications:        notifications,
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

// Registry returns the underlying registry, mainly for tests.
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
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// EnrollmentCreated counts one committed enrollment.
func (m *MetricsService) EnrollmentCreated(offeringType models.OfferingType) {
	if m == nil {
		return
	}
	m.enrollmentsCreated.WithLabelValues(string(offeringType)).Inc()
}

// EnrollmentTransitioned counts a committed status change.
func (m *MetricsService) EnrollmentTransitioned(trigger models.TransitionTrigger, status models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.enrollmentDecisions.WithLabelValues(string(trigger), string(status)).Inc()
	if trigger == models.TriggerSystemCascade {
		m.cascades.Inc()
	}
}

// InstallmentApproved counts a committed pending → paid transition.
func (m *MetricsService) InstallmentApproved() {
	if m == nil {
		return
	}
	m.installmentsApproved.Inc()
}

// ApprovalConflict counts an approval that found the installment already paid.
func (m *MetricsService) ApprovalConflict() {
	if m == nil {
		return
	}
	m.approvalConflicts.Inc()
}

// VoucherEvent counts voucher submissions ("attached") and rejections ("rejected").
func (m *MetricsService) VoucherEvent(action string) {
	if m == nil {
		return
	}
	m.vouchers.WithLabelValues(action).Inc()
}

// NotificationOutcome counts notification results: queued, dropped, sent, failed.
func (m *MetricsService) NotificationOutcome(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}
