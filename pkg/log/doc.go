/*
Package log provides structured logging for holo using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

holo's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("validation")              │          │
	│  │  - WithAgentID("agent-abc123")              │          │
	│  │  - WithDNA("dna-xyz")                       │          │
	│  │  - WithZome("notes")                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "nucleus",                  │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "zome call queued"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-31T10:30:00Z INF zome call queued   │          │
	│  │    component=nucleus                        │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all holo packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs (dht, nucleus, wasm, validation, network, conductor)
  - WithAgentID: Add agent address context
  - WithDNA: Add DNA address ("space") context
  - WithZome: Add zome name context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "resolved entry type def: requirement=chain_full zome=notes"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "instance started: agent=agent-1 dna=dna-abc123"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "query timed out, no reply received"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "validation callback failed: insufficient provenance"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open cas/eav stores: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/holo/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/holo.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("conductor starting")
	log.Debug("checking instance status")
	log.Warn("query approaching deadline")
	log.Error("failed to connect transport")
	log.Fatal("cannot start without cas/eav stores") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("agent_id", "agent-1").
		Int("zome_calls_in_flight", 3).
		Msg("instance started")

	log.Logger.Error().
		Err(err).
		Str("dna_address", "dna-abc").
		Msg("validation package request failed")

Component Loggers:

	// Create component-specific logger
	validationLog := log.WithComponent("validation")
	validationLog.Info().Msg("starting pending-queue ticker")
	validationLog.Debug().Str("header", addr.String()).Msg("enqueued aspect for retry")

	// Multiple context fields
	netLog := log.WithComponent("network").
		With().Str("dna_address", "dna-abc").
		Str("agent_id", "agent-1").Logger()
	netLog.Info().Msg("peer connected")
	netLog.Error().Err(err).Msg("gossip fetch failed")

Context Logger Helpers:

	// Agent-specific logs
	agentLog := log.WithAgentID("agent-abc123")
	agentLog.Info().Msg("chain genesis committed")

	// Space (DNA) specific logs
	spaceLog := log.WithDNA("dna-xyz789")
	spaceLog.Info().Msg("dna loaded")

	// Zome-specific logs
	zomeLog := log.WithZome("notes")
	zomeLog.Info().Msg("zome function called")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/holo/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("holo starting")

		// Component-specific logging
		nucleusLog := log.WithComponent("nucleus")
		nucleusLog.Info().
			Str("agent_id", "agent-1").
			Int("calls_in_flight", 2).
			Msg("dispatching zome calls")

		// Error logging
		err := errors.New("transport closed")
		log.Logger.Error().
			Err(err).
			Str("component", "network").
			Msg("failed to publish entry")

		log.Info("holo stopped")
	}

# Integration Points

This package integrates with:

  - pkg/dht: Logs CAS/EAV commit and hold operations
  - pkg/nucleus: Logs zome call queueing and results
  - pkg/wasm: Logs host function failures
  - pkg/validation: Logs pending-queue retries and drops
  - pkg/network: Logs transport and gossip events
  - pkg/conductor: Logs instance lifecycle

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"nucleus","time":"2026-07-31T10:30:00Z","message":"zome call queued"}
	{"level":"info","component":"validation","header":"addr-123","time":"2026-07-31T10:30:01Z","message":"aspect held"}
	{"level":"error","component":"network","dna_address":"dna-abc","error":"deadline exceeded","time":"2026-07-31T10:30:02Z","message":"query timed out"}

Console Format (Development):

	2026-07-31T10:30:00Z INF zome call queued component=nucleus
	2026-07-31T10:30:01Z INF aspect held component=validation header=addr-123
	2026-07-31T10:30:02Z ERR query timed out component=network dna_address=dna-abc error="deadline exceeded"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact signing keys, capability tokens, seeds
  - Review logs before sharing externally

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
