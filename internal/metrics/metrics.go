package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "sqlitecult"

	METHOD_LABEL = "method"
	ROUTE_LABEL  = "route"
	STATUS_LABEL = "status"
	KIND_LABEL   = "kind"
	RESULT_LABEL = "result"
	EVENT_LABEL  = "event"

	Succeeded = "succeeded"
	Failed    = "failed"

	KindRead  = "read"
	KindWrite = "write"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests by method, route and status code",
		},
		[]string{METHOD_LABEL, ROUTE_LABEL, STATUS_LABEL},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by method and route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{METHOD_LABEL, ROUTE_LABEL},
	)

	queryExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "query_executions_total",
			Help:      "Ad-hoc query executions by statement kind and result",
		},
		[]string{KIND_LABEL, RESULT_LABEL},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "query_duration_seconds",
			Help:      "Duration of ad-hoc query executions",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{KIND_LABEL},
	)

	importedRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "csv_imported_rows_total",
			Help:      "Rows committed by CSV imports",
		},
	)

	securityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "security_events_total",
			Help:      "Security relevant events seen on the public API",
		},
		[]string{EVENT_LABEL},
	)

	registerOnce sync.Once
)

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests)
		prometheus.MustRegister(httpDuration)
		prometheus.MustRegister(queryExecutions)
		prometheus.MustRegister(queryDuration)
		prometheus.MustRegister(importedRows)
		prometheus.MustRegister(securityEvents)
	})
}

func ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func ObserveQuery(kind string, err error, elapsed time.Duration) {
	result := Succeeded
	if err != nil {
		result = Failed
	}
	queryExecutions.WithLabelValues(kind, result).Inc()
	queryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func AddImportedRows(n int) {
	importedRows.Add(float64(n))
}

func CounterForSecurityEvent(event string) prometheus.Counter {
	return securityEvents.WithLabelValues(event)
}
