package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscribe_transactions_dispatched_total",
		Help: "Transaction records handed to the sink, by final status",
	}, []string{"status"})

	TransactionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opscribe_transactions_dropped_total",
		Help: "Transaction records dropped because the dispatch queue was full",
	})

	TransactionsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opscribe_transactions_duplicate_total",
		Help: "Duplicate dispatch attempts suppressed by the one-shot guard",
	})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opscribe_sink_errors_total",
		Help: "Failed sink writes, by sink name",
	}, []string{"sink"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opscribe_dispatch_latency_seconds",
		Help:    "Latency of sink writes",
		Buckets: prometheus.DefBuckets,
	})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opscribe_request_latency_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
