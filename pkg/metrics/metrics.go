package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginsStarted tracks authorization redirects issued
	LoginsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swipify_logins_started_total",
			Help: "Total number of login attempts redirected to the provider",
		},
	)

	// LoginAttempts tracks completed callbacks by result
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipify_login_attempts_total",
			Help: "Total number of login callbacks by result (success/failure) and failure reason",
		},
		[]string{"result", "reason"},
	)

	// LoginDuration tracks how long a user took between redirect and callback
	LoginDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swipify_login_duration_seconds",
			Help:    "Time between starting a login and its callback",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// TokenRefreshes tracks token refresh operations
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipify_token_refreshes_total",
			Help: "Total number of token refresh operations by result",
		},
		[]string{"result", "reason"},
	)

	// TokenRefreshDuration tracks token refresh duration
	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swipify_token_refresh_duration_seconds",
			Help:    "Duration of token refresh operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTPRequestDuration tracks HTTP request duration by endpoint
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swipify_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by endpoint and status",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method", "status"},
	)

	// HTTPRequestsInFlight tracks current in-flight HTTP requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swipify_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// RateLimitHits tracks rate limit hits
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swipify_rate_limit_hits_total",
			Help: "Total number of requests that hit rate limits",
		},
	)

	// ProviderRequests tracks calls to the identity provider
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swipify_provider_requests_total",
			Help: "Total number of requests to the identity provider by operation and result",
		},
		[]string{"operation", "result"},
	)

	// ProviderDuration tracks identity provider request duration
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swipify_provider_duration_seconds",
			Help:    "Duration of identity provider requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// PendingLoginsCleaned counts expired pending logins removed by cleanup
	PendingLoginsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swipify_pending_logins_cleaned_total",
			Help: "Total number of expired pending logins deleted by the cleanup loop",
		},
	)
)

// RecordLoginStarted records an authorization redirect
func RecordLoginStarted() {
	LoginsStarted.Inc()
}

// RecordLoginSuccess records a successful login
func RecordLoginSuccess() {
	LoginAttempts.WithLabelValues("success", "").Inc()
}

// RecordLoginFailure records a failed login with reason
func RecordLoginFailure(reason string) {
	LoginAttempts.WithLabelValues("failure", reason).Inc()
}

// RecordTokenRefreshSuccess records a successful token refresh
func RecordTokenRefreshSuccess() {
	TokenRefreshes.WithLabelValues("success", "").Inc()
}

// RecordTokenRefreshFailure records a failed token refresh with reason
func RecordTokenRefreshFailure(reason string) {
	TokenRefreshes.WithLabelValues("failure", reason).Inc()
}

// RecordProviderRequest records one identity provider call
func RecordProviderRequest(operation string, err error, took time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	ProviderRequests.WithLabelValues(operation, result).Inc()
	ProviderDuration.WithLabelValues(operation).Observe(took.Seconds())
}
