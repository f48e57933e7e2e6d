/*
Package monitoring provides Prometheus metrics for the tournament runner.

# Overview

Metrics live in a private registry per Metrics value, so tests and
multiple servers in one process do not collide. All recording methods
accept a nil receiver.

# Metrics

  - koth_http_requests_total, koth_http_request_duration_seconds
  - koth_operations_total, koth_operation_duration_seconds (subgame, module_fetch, store_write)
  - koth_execution_contexts_active, koth_execution_contexts_total
  - koth_module_loads_total, koth_protocol_violations_total
  - koth_tournaments_active, koth_tournaments_total
  - koth_ws_connections, koth_ws_messages_total

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, monitoring.OpSubgame)
	// ... run the game ...
	timer.Stop(monitoring.StatusOK)
*/
package monitoring
