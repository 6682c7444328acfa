package prometheus

import (
	"strconv"
	"time"

	"github.com/glideapps/fake-discord/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tenant lifecycle metrics
	TenantOperationCounter *prometheus.CounterVec
	TenantsSweptCounter    prometheus.Counter

	// OAuth metrics
	TokensIssuedCounter        prometheus.Counter
	InvalidTokenRequestCounter *prometheus.CounterVec

	// Discord surface metrics
	MessagesCounter            *prometheus.CounterVec
	InteractionsCounter        *prometheus.CounterVec
	CommandsRegisteredCounter  prometheus.Counter
	WebhookDeliveryCounter     *prometheus.CounterVec
	InvalidRequestCounter      *prometheus.CounterVec

	// Audit metrics
	AuditEntriesCounter prometheus.Counter

	// Database operation metrics
	DBOperationHistogram *prometheus.HistogramVec

	// Request metrics
	RequestDurationHistogram *prometheus.HistogramVec
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec

	// Namespace prefix for metrics
	namespace string

	initialized bool
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics(cfg *config.Config) {
	if initialized {
		return
	}
	initialized = true
	namespace = cfg.Metrics.Prefix

	TenantOperationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_operations_total",
			Help:      "Total number of tenant lifecycle operations",
		},
		[]string{"operation"},
	)

	TenantsSweptCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenants_swept_total",
		Help:      "Total number of tenants reclaimed by the expiry sweeper",
	})

	TokensIssuedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of access tokens issued",
	})

	InvalidTokenRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_token_request_total",
			Help:      "Total number of invalid token requests",
		},
		[]string{"error_type"},
	)

	MessagesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of message operations",
		},
		[]string{"operation"},
	)

	InteractionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Total number of interaction response operations",
		},
		[]string{"operation"},
	)

	CommandsRegisteredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_registered_total",
		Help:      "Total number of slash commands registered via bulk overwrite",
	})

	WebhookDeliveryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of signed interaction deliveries",
		},
		[]string{"result"},
	)

	InvalidRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_requests_total",
			Help:      "Total number of rejected requests",
		},
		[]string{"error_type"},
	)

	AuditEntriesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_entries_total",
		Help:      "Total number of audit log entries written",
	})

	DBOperationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			APIRequestCounter.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Inc()

			// Process the request
			err := next(c)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			RequestDurationHistogram.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Observe(duration)

			if c.Response().Status >= 400 {
				APIErrorCounter.With(prometheus.Labels{
					"method": c.Request().Method,
					"path":   c.Path(),
					"status": status,
				}).Inc()
			}

			return err
		}
	}
}

// HandlerFunc returns a HTTP handler for metrics endpoint
func HandlerFunc() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// TrackDBOperation returns a function that tracks database operation duration
func TrackDBOperation(operation string) func(time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationHistogram.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// RecordTenantOperation increments the tenant operation counter
func RecordTenantOperation(operation string) {
	if TenantOperationCounter != nil {
		TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
	}
}

// RecordInvalidRequest increments the invalid request counter
func RecordInvalidRequest(errorType string) {
	if InvalidRequestCounter != nil {
		InvalidRequestCounter.With(prometheus.Labels{"error_type": errorType}).Inc()
	}
}

// RecordInvalidTokenRequest increments the invalid token request counter
func RecordInvalidTokenRequest(errorType string) {
	if InvalidTokenRequestCounter != nil {
		InvalidTokenRequestCounter.With(prometheus.Labels{"error_type": errorType}).Inc()
	}
}

// RecordTokenIssued increments the tokens issued counter
func RecordTokenIssued() {
	if TokensIssuedCounter != nil {
		TokensIssuedCounter.Inc()
	}
}

// RecordMessageOperation increments the message operation counter
func RecordMessageOperation(operation string) {
	if MessagesCounter != nil {
		MessagesCounter.With(prometheus.Labels{"operation": operation}).Inc()
	}
}

// RecordInteractionOperation increments the interaction operation counter
func RecordInteractionOperation(operation string) {
	if InteractionsCounter != nil {
		InteractionsCounter.With(prometheus.Labels{"operation": operation}).Inc()
	}
}

// RecordCommandsRegistered adds to the registered command counter
func RecordCommandsRegistered(n int) {
	if CommandsRegisteredCounter != nil {
		CommandsRegisteredCounter.Add(float64(n))
	}
}

// RecordWebhookDelivery increments the webhook delivery counter
func RecordWebhookDelivery(result string) {
	if WebhookDeliveryCounter != nil {
		WebhookDeliveryCounter.With(prometheus.Labels{"result": result}).Inc()
	}
}

// RecordTenantsSwept adds to the swept tenant counter
func RecordTenantsSwept(n int) {
	if TenantsSweptCounter != nil {
		TenantsSweptCounter.Add(float64(n))
	}
}

// RecordAuditEntry increments the audit entry counter
func RecordAuditEntry() {
	if AuditEntriesCounter != nil {
		AuditEntriesCounter.Inc()
	}
}
