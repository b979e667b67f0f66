package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poupapush_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poupapush_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	leadsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poupapush_leads_saved_total",
			Help: "Leads created or merged, by source",
		},
		[]string{"lead_source"},
	)

	campaignsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poupapush_campaigns_dispatched_total",
			Help: "Campaign fan-outs by schedule type",
		},
		[]string{"schedule_type"},
	)

	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poupapush_push_deliveries_total",
			Help: "Per-lead push sends by outcome",
		},
		[]string{"outcome"},
	)

	fanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poupapush_fanout_duration_seconds",
			Help:    "Time to fan a campaign out to its audience",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
	)

	analyticsEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poupapush_analytics_events_total",
			Help: "Engagement events recorded, by type",
		},
		[]string{"event_type"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poupapush_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLeadSaved records a lead upsert
func RecordLeadSaved(source string) {
	leadsSaved.WithLabelValues(source).Inc()
}

// RecordCampaignDispatched records a completed fan-out
func RecordCampaignDispatched(scheduleType string, duration time.Duration) {
	campaignsDispatched.WithLabelValues(scheduleType).Inc()
	fanoutDuration.Observe(duration.Seconds())
}

// RecordPushDelivery records a per-lead push outcome ("sent" or "error")
func RecordPushDelivery(outcome string) {
	pushDeliveries.WithLabelValues(outcome).Inc()
}

// RecordAnalyticsEvent records an engagement event
func RecordAnalyticsEvent(eventType string) {
	analyticsEvents.WithLabelValues(eventType).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
