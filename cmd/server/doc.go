// Package main is the entry point for the tournament server.
//
// The server accepts tournament definitions over HTTP, runs every game in a
// sandboxed JavaScript context and streams progress over WebSocket.
//
// Architecture:
//
//	Client → REST API → Tournament Manager → Match Scheduler → Game Runner → Sandbox
//	       ← WebSocket ←        ↓
//	                      SQLite store
//
// The server provides:
//   - REST API for starting, inspecting and cancelling tournaments
//   - WebSocket streaming of run progress
//   - Prometheus metrics and OpenTelemetry tracing
//   - Rate limiting and CORS
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -db /var/lib/koth/runs.db -modules ./games
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
