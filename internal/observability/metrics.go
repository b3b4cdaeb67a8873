package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	integrityViolationsTotal *prometheus.CounterVec
	taskCompletionCounter    *prometheus.CounterVec
	settlementCounter        *prometheus.CounterVec
	tierTransferCounter      *prometheus.CounterVec
	idempotencyCounter       *prometheus.CounterVec
	sseSubscriberGauge       prometheus.Gauge
	workerRunCounter         *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		integrityViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "counter_integrity_violations_total",
			Help: "Counter records caught violating balance or quota invariants",
		}, []string{"kind"})

		taskCompletionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_task_completions_total",
			Help: "Task completion attempts by tier and outcome",
		}, []string{"tier", "outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_settlements_total",
			Help: "Withdrawal settlement decisions",
		}, []string{"action"})

		tierTransferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tier_principal_transfers_total",
			Help: "Automatic principal transfers between tiers",
		}, []string{"from_tier"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		sseSubscriberGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "event_stream_subscribers",
			Help: "Currently connected event stream subscribers",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			integrityViolationsTotal,
			taskCompletionCounter,
			settlementCounter,
			tierTransferCounter,
			idempotencyCounter,
			sseSubscriberGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIntegrityViolation(kind string) {
	if integrityViolationsTotal == nil {
		return
	}
	integrityViolationsTotal.WithLabelValues(kind).Inc()
}

func IncrementTaskCompletion(tierID int, outcome string) {
	if taskCompletionCounter == nil {
		return
	}
	taskCompletionCounter.WithLabelValues(strconv.Itoa(tierID), outcome).Inc()
}

func IncrementSettlement(action string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(action).Inc()
}

func IncrementTierTransfer(fromTier int) {
	if tierTransferCounter == nil {
		return
	}
	tierTransferCounter.WithLabelValues(strconv.Itoa(fromTier)).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func AddEventStreamSubscribers(delta int) {
	if sseSubscriberGauge == nil {
		return
	}
	sseSubscriberGauge.Add(float64(delta))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
