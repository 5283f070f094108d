package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EnvelopesSeenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redgrab_envelopes_seen_total",
			Help: "Total number of envelope elements observed in inbound messages (count)",
		},
	)

	ClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_claims_total",
			Help: "Total number of claim attempts by outcome (count)",
		},
		[]string{"status"},
	)

	ClaimedAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redgrab_claimed_amount_total",
			Help: "Total claimed amount in major units (sum)",
		},
	)

	ClaimDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redgrab_claim_duration_ms",
			Help:    "Duration of claim calls against the host in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_dedup_checks_total",
			Help: "Total number of envelope dedup checks by outcome (count)",
		},
		[]string{"status"},
	)

	DedupStoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "redgrab_dedup_store_size",
			Help: "Approximate number of envelope identifiers held by the dedup store (count)",
		},
	)

	FilterVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_filter_verdicts_total",
			Help: "Total number of policy filter verdicts by reason (count)",
		},
		[]string{"verdict"},
	)

	IdentityProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_identity_probes_total",
			Help: "Total number of identity probe calls by command and outcome (count)",
		},
		[]string{"command", "status"},
	)

	CooldownSuppressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redgrab_cooldown_suppressions_total",
			Help: "Total number of conversations placed under anti-detection cooldown (count)",
		},
	)

	CooldownActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "redgrab_cooldown_active",
			Help: "Number of conversations currently under anti-detection cooldown (count)",
		},
	)

	HostCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_host_calls_total",
			Help: "Total number of remote calls issued to the host client (count)",
		},
		[]string{"command", "status"},
	)

	HostCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redgrab_host_call_duration_ms",
			Help:    "Duration of host client calls in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"command"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"component", "strategy", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redgrab_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"component", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_dlq_messages_total",
			Help: "Total number of events sent to DLQ (count)",
		},
		[]string{"component", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_kafka_messages_read_total",
			Help: "Total number of events read from Kafka (count)",
		},
		[]string{"component", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redgrab_kafka_messages_written_total",
			Help: "Total number of events written to Kafka (count)",
		},
		[]string{"component", "topic"},
	)
)

func RegisterCaptureMetrics() {
	prometheus.MustRegister(EnvelopesSeenTotal)
	prometheus.MustRegister(ClaimsTotal)
	prometheus.MustRegister(ClaimedAmountTotal)
	prometheus.MustRegister(ClaimDuration)
	prometheus.MustRegister(DedupChecksTotal)
	prometheus.MustRegister(DedupStoreSize)
	prometheus.MustRegister(FilterVerdictsTotal)
	prometheus.MustRegister(IdentityProbesTotal)
	prometheus.MustRegister(CooldownSuppressionsTotal)
	prometheus.MustRegister(CooldownActive)
	prometheus.MustRegister(HostCallsTotal)
	prometheus.MustRegister(HostCallDuration)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveClaimDuration(duration time.Duration, status string) {
	ClaimDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveHostCallDuration(command string, duration time.Duration) {
	HostCallDuration.WithLabelValues(command).Observe(float64(duration.Milliseconds()))
}

func SetDedupStoreSize(size int) {
	DedupStoreSize.Set(float64(size))
}

func SetCooldownActive(count int) {
	CooldownActive.Set(float64(count))
}
