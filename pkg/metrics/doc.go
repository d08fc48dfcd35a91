/*
Package metrics provides Prometheus metrics collection and exposition for holo.

The metrics package defines and registers all holo metrics using the Prometheus
client library, covering the source chain, DHT, validation pipeline, nucleus
zome-call pipeline, WASM engine, and network protocol core. It also exposes
health/readiness/liveness HTTP handlers and a Timer helper for measuring
operation duration.

# Architecture

holo's metrics system follows Prometheus best practices with per-subsystem
counters, gauges, and histograms collected both inline (at the call site, like
the teacher's scheduler) and periodically (via Collector, polling a
conductor's running instances):

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Inline Instrumentation             │          │
	│  │  - pkg/chain: holo_chain_commits_total      │          │
	│  │  - pkg/eav:   holo_dht_eav_queries_total    │          │
	│  │  - pkg/dht:   holo_dht_held_aspects_total   │          │
	│  │  - pkg/nucleus: zome call counters/gauges   │          │
	│  │  - pkg/wasm:  host call duration/outcome    │          │
	│  │  - pkg/validation: pending gauge, outcomes  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Collector                       │          │
	│  │  - Ticks every 15s                          │          │
	│  │  - Polls its Source (*conductor.Conductor)  │          │
	│  │    for instance counts by status            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - /metrics HTTP endpoint (promhttp)        │          │
	│  │  - /health, /ready, /live endpoints         │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Chain / DHT metrics:
  - holo_chain_commits_total{entry_type}: entries committed to a source chain
  - holo_dht_eav_queries_total{filter}: EAV store queries by index filter
  - holo_dht_held_aspects_total: entry aspects currently held

Validation metrics:
  - holo_validation_pending_gauge: aspects awaiting a validation package
  - holo_validation_outcomes_total{variant,result}: held/failed/dropped outcomes

Nucleus metrics:
  - holo_nucleus_zome_calls_total{zome,result}: completed zome calls
  - holo_nucleus_calls_in_flight: zome calls queued or running

WASM engine metrics:
  - holo_wasm_invocations_duration_seconds{host_function}: host call latency
  - holo_wasm_host_calls_total{host_function,outcome}: host call outcomes

Network metrics:
  - holo_network_query_timeouts_total: queries that timed out
  - holo_network_messages_total{kind,direction}: envelopes sent/received
  - holo_network_gossip_peers_gauge: connected gossip peers

Conductor metrics:
  - holo_conductor_instances_total{status}: instances by lifecycle status

# Usage

Inline instrumentation (teacher's pattern — increment at the call site):

	metrics.ChainCommitsTotal.WithLabelValues(string(entry.Type)).Inc()
	metrics.NucleusZomeCallsTotal.WithLabelValues(call.ZomeName, "ok").Inc()

Timing a histogram:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.WasmInvocationsDuration, "commit")

Periodic collection:

	collector := metrics.NewCollector(c) // c is a *conductor.Conductor
	collector.Start()
	defer collector.Stop()

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Health Checking

Components register their health via RegisterComponent/UpdateComponent;
GetHealth aggregates into an overall status, and GetReadiness additionally
requires the "chain", "dht", and "network" components to be
registered and healthy before reporting ready.

# See Also

  - Prometheus client_golang: https://github.com/prometheus/client_golang
  - Prometheus naming conventions: https://prometheus.io/docs/practices/naming/
*/
package metrics
