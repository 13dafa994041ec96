package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	proposerMetricsOnce sync.Once
	proposerRegistry    *ProposerMetrics

	resolverMetricsOnce sync.Once
	resolverRegistry    *ResolverMetrics
)

// GatewayMetrics tracks lookups served by the CCIP gateway.
type GatewayMetrics struct {
	lookups    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	blockLag   prometheus.Gauge
	proofSlots prometheus.Histogram
}

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "gateway",
				Name:      "lookups_total",
				Help:      "Offchain lookups segmented by record kind and outcome.",
			}, []string{"kind", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "l2resolver",
				Subsystem: "gateway",
				Name:      "lookup_duration_seconds",
				Help:      "Time spent assembling a proof bundle.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			blockLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "l2resolver",
				Subsystem: "gateway",
				Name:      "checkpoint_block",
				Help:      "L2 block of the checkpoint the last bundle was proven against.",
			}),
			proofSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "l2resolver",
				Subsystem: "gateway",
				Name:      "proof_slots",
				Help:      "Number of storage slots proven per bundle.",
				Buckets:   []float64{2, 3, 4, 8, 16, 64, 256, 1024, 2050},
			}),
		}
		prometheus.MustRegister(
			gatewayRegistry.lookups,
			gatewayRegistry.latency,
			gatewayRegistry.blockLag,
			gatewayRegistry.proofSlots,
		)
	})
	return gatewayRegistry
}

// Observe records a finished lookup. Outcome should be a stable string such
// as "ok", "bad_query" or "not_yet_provable".
func (m *GatewayMetrics) Observe(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.lookups.WithLabelValues(kind, outcome).Inc()
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordBundle records the checkpoint block and slot count of a served bundle.
func (m *GatewayMetrics) RecordBundle(checkpointBlock uint64, slots int) {
	if m == nil {
		return
	}
	m.blockLag.Set(float64(checkpointBlock))
	m.proofSlots.Observe(float64(slots))
}

// ProposerMetrics wraps collectors tracking output root publication.
type ProposerMetrics struct {
	proposals   prometheus.Counter
	failures    prometheus.Counter
	latestBlock prometheus.Gauge
}

// Proposer exposes the metrics registry for the output root proposer.
func Proposer() *ProposerMetrics {
	proposerMetricsOnce.Do(func() {
		proposerRegistry = &ProposerMetrics{
			proposals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "proposer",
				Name:      "proposals_total",
				Help:      "Output roots published.",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "proposer",
				Name:      "failures_total",
				Help:      "Proposal attempts that failed.",
			}),
			latestBlock: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "l2resolver",
				Subsystem: "proposer",
				Name:      "latest_block",
				Help:      "L2 block committed by the newest output root.",
			}),
		}
		prometheus.MustRegister(
			proposerRegistry.proposals,
			proposerRegistry.failures,
			proposerRegistry.latestBlock,
		)
	})
	return proposerRegistry
}

// RecordProposal notes a published output root for block.
func (m *ProposerMetrics) RecordProposal(block uint64) {
	if m == nil {
		return
	}
	m.proposals.Inc()
	m.latestBlock.Set(float64(block))
}

// RecordFailure increments the failure counter.
func (m *ProposerMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// ResolverMetrics counts client-side verification results.
type ResolverMetrics struct {
	verifications *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
}

// Resolver returns the metrics registry used by the CCIP-read client.
func Resolver() *ResolverMetrics {
	resolverMetricsOnce.Do(func() {
		resolverRegistry = &ResolverMetrics{
			verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "resolver",
				Name:      "verifications_total",
				Help:      "Gateway responses checked, segmented by outcome.",
			}, []string{"outcome"}),
			fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "resolver",
				Name:      "gateway_failures_total",
				Help:      "Gateway attempts that failed before falling back, segmented by status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(resolverRegistry.verifications, resolverRegistry.fallbacks)
	})
	return resolverRegistry
}

// RecordVerification records the outcome of a proof check. A nil error is
// counted as "verified".
func (m *ResolverMetrics) RecordVerification(err error) {
	if m == nil {
		return
	}
	outcome := "verified"
	if err != nil {
		outcome = "rejected"
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// RecordFallback records a failed gateway attempt. status is the HTTP status,
// or zero for transport errors.
func (m *ResolverMetrics) RecordFallback(status int) {
	if m == nil {
		return
	}
	label := "transport"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.fallbacks.WithLabelValues(strings.TrimSpace(label)).Inc()
}
