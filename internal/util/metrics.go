package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created at checkout",
	})

	OrdersConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Total number of orders confirmed by sellers",
	})

	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of orders rejected by sellers",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"reason"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders completed via delivery verification",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order operations",
	}, []string{"reason"})

	VerificationAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verification_attempts_total",
		Help: "Total number of verification code submissions sent to the verifier",
	})

	VerificationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_failed_total",
		Help: "Total number of failed verification code submissions",
	}, []string{"reason"})

	VerificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verification_latency_seconds",
		Help:    "Latency of remote verification calls",
		Buckets: prometheus.DefBuckets,
	})

	RefundsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_requested_total",
		Help: "Total number of escrow refunds requested from the payment collaborator",
	})

	PaymentsEscrowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_escrowed_total",
		Help: "Total number of orders whose payment landed in escrow",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
