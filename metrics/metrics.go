// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the services and the background workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	stockRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shop_service_checkout_stock_rejections_total",
			Help: "Checkouts rejected for insufficient stock",
		},
	)

	cartClearFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shop_service_cart_clear_failures_total",
			Help: "Post-checkout cart clears that failed and were logged",
		},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_notifications_total",
			Help: "Push notification outcomes",
		},
		[]string{"kind", "result"},
	)

	outboxEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_outbox_events_total",
			Help: "Outbox relay outcomes",
		},
		[]string{"result"},
	)
)

// RecordOrderOperation counts an order operation by outcome.
func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordStockRejection() {
	stockRejections.Inc()
}

func RecordCartClearFailure() {
	cartClearFailures.Inc()
}

// RecordNotification counts a dispatch attempt. result is one of sent,
// skipped, token_cleared, dropped or failed.
func RecordNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

// RecordOutbox counts relay outcomes: published, retry or failed.
func RecordOutbox(result string) {
	outboxEvents.WithLabelValues(result).Inc()
}
