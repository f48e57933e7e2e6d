// Package server wires the tournament service together.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//   - Game module sources and the per-game runner
//   - The tournament manager and its SQLite store
//   - Entry resolution for runs started without inline entries
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Set up metrics and tracing
//  4. Open the store and mark runs left over from a crash as failed
//  5. Build module sources, runner factory and manager
//  6. Setup HTTP routes and middleware
//  7. Start HTTP server
//  8. Graceful shutdown on signal: cancel runs, record their state, close
//     the store
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(ctx, cfg)
//	go srv.Run()
//	<-sig
//	srv.Shutdown(ctx)
package server
