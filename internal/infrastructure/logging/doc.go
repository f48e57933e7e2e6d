// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: coloured console output
//
// Logs go to stderr so the tournament CLI can print the leaderboard on
// stdout. Every subsystem receives a named child via Component:
//
//	logger := logging.NewDefault()
//	sched := logger.Component("scheduler")
//	sched.Info("task started", zap.Int("index", 3))
package logging
