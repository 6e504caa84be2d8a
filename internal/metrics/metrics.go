package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Users is the number of registered accounts, refreshed by the stats job.
	Users = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spendflow_users",
			Help: "Number of registered users",
		},
	)

	// ExpensesCreatedTotal counts stored expenses by source (api, import).
	ExpensesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spendflow_expenses_created_total",
			Help: "Total number of expenses created, by source",
		},
		[]string{"source"},
	)

	// AccountsDeletedTotal counts account deletions.
	AccountsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spendflow_accounts_deleted_total",
			Help: "Total number of deleted accounts",
		},
	)

	// EventPublishFailuresTotal counts domain events that could not be published.
	EventPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spendflow_event_publish_failures_total",
			Help: "Total number of domain events that failed to publish",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, Users, ExpensesCreatedTotal, AccountsDeletedTotal, EventPublishFailuresTotal)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /expenses/123 -> /expenses/{id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// SetUsers sets the registered users gauge.
func SetUsers(n int) {
	Users.Set(float64(n))
}

// AddExpensesCreated adds n to the created expenses counter for source (api or import).
func AddExpensesCreated(source string, n int) {
	ExpensesCreatedTotal.WithLabelValues(source).Add(float64(n))
}

// IncAccountsDeleted increments the deleted accounts counter.
func IncAccountsDeleted() {
	AccountsDeletedTotal.Inc()
}

// IncEventPublishFailures increments the failed event publish counter.
func IncEventPublishFailures() {
	EventPublishFailuresTotal.Inc()
}
