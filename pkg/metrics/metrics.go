package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Source chain / DHT metrics
	ChainCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_chain_commits_total",
			Help: "Total number of entries committed to a source chain, by entry type",
		},
		[]string{"entry_type"},
	)

	DHTEAVQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_dht_eav_queries_total",
			Help: "Total number of EAV store queries, by index filter",
		},
		[]string{"filter"},
	)

	DHTHeldAspectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holo_dht_held_aspects_total",
			Help: "Total number of entry aspects currently held by this agent",
		},
	)

	// Validation pipeline metrics
	ValidationPendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holo_validation_pending_gauge",
			Help: "Number of entry aspects awaiting a validation package",
		},
	)

	ValidationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_validation_outcomes_total",
			Help: "Total number of validation workflow outcomes, by aspect variant and result",
		},
		[]string{"variant", "result"},
	)

	// Nucleus / zome call metrics
	NucleusZomeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_nucleus_zome_calls_total",
			Help: "Total number of zome function calls dispatched, by zome and result",
		},
		[]string{"zome", "result"},
	)

	NucleusCallsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holo_nucleus_calls_in_flight",
			Help: "Number of zome calls currently queued or running",
		},
	)

	// WASM engine metrics
	WasmInvocationsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holo_wasm_invocations_duration_seconds",
			Help:    "Duration of WASM guest function invocations in seconds, by host function",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host_function"},
	)

	WasmHostCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_wasm_host_calls_total",
			Help: "Total number of WASM host function invocations, by host function and outcome",
		},
		[]string{"host_function", "outcome"},
	)

	// Network protocol metrics
	NetworkQueryTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "holo_network_query_timeouts_total",
			Help: "Total number of network queries that timed out without a reply",
		},
	)

	NetworkMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holo_network_messages_total",
			Help: "Total number of network envelopes sent or received, by envelope kind and direction",
		},
		[]string{"kind", "direction"},
	)

	NetworkGossipPeersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "holo_network_gossip_peers_gauge",
			Help: "Number of peers currently tracked as connected for gossip",
		},
	)

	// Conductor / instance metrics
	ConductorInstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holo_conductor_instances_total",
			Help: "Total number of conductor instances by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(ChainCommitsTotal)
	prometheus.MustRegister(DHTEAVQueriesTotal)
	prometheus.MustRegister(DHTHeldAspectsTotal)
	prometheus.MustRegister(ValidationPendingGauge)
	prometheus.MustRegister(ValidationOutcomesTotal)
	prometheus.MustRegister(NucleusZomeCallsTotal)
	prometheus.MustRegister(NucleusCallsInFlight)
	prometheus.MustRegister(WasmInvocationsDuration)
	prometheus.MustRegister(WasmHostCallsTotal)
	prometheus.MustRegister(NetworkQueryTimeoutsTotal)
	prometheus.MustRegister(NetworkMessagesTotal)
	prometheus.MustRegister(NetworkGossipPeersGauge)
	prometheus.MustRegister(ConductorInstancesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
