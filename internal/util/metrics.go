package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of successful checkouts",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout settlement",
		Buckets: prometheus.DefBuckets,
	})

	WalletCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Total number of wallet credits",
	}, []string{"reference_type"})

	WalletDebitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_debits_total",
		Help: "Total number of wallet debits",
	}, []string{"reference_type"})

	InsufficientFundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_insufficient_funds_total",
		Help: "Total number of debits rejected for insufficient funds",
	})

	SettlementDebitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_debit_failures_total",
		Help: "Checkouts whose orders committed but whose wallet debit failed",
	})

	RefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total number of processed refunds",
	})

	RefundsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_failed_total",
		Help: "Total number of failed refund attempts",
	}, []string{"reason"})

	CouponsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_generated_total",
		Help: "Total number of coupons minted",
	})

	CouponsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupons_consumed_total",
		Help: "Total number of coupons consumed at checkout",
	})

	CashbackJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashback_jobs_total",
		Help: "Promotion jobs processed by outcome",
	}, []string{"outcome"})

	CashbackProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cashback_processing_latency_seconds",
		Help:    "Latency of cashback processing, settlement delay excluded",
		Buckets: prometheus.DefBuckets,
	})

	AchievementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "achievements_total",
		Help: "Total number of achievement records created",
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
