// Package middleware provides the HTTP middleware of the tournament API.
//
// Middleware stack includes:
//   - CORS: cross-origin access for dashboards, websocket upgrades included
//   - RateLimit: per-IP token buckets, idle clients are dropped
//   - GlobalRateLimit: one bucket for the whole process
//
// Health and metrics routes are exempt from rate limiting by default.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
