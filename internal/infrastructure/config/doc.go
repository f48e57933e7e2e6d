// Package config provides process configuration and tournament definitions.
//
// Process configuration is loaded from environment variables with defaults
// (Load, LoadOrDefault). CLI flags override environment values.
//
// Sections:
//   - Server: HTTP server settings (PORT, HOST)
//   - Logging: LOG_LEVEL, LOG_DEV
//   - RateLimit: RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - Sandbox: SANDBOX_TIMEOUT, SANDBOX_RESTRICTED, SANDBOX_MONOTONIC_CLOCK
//   - Scheduler: MAX_CONCURRENCY, PROGRESS_HZ
//   - Storage: DB_PATH
//   - Modules: MODULES_DIR, MODULES_URL, MODULES_ALLOW
//   - Entries: ENTRIES_DIR, ENTRIES_URL
//
// A tournament Definition describes one competition (game type, team
// builder, tournament and match node kinds with their arguments) and is read
// from YAML, TOML or JSON files, or from the <meta> tags of a game page.
package config
