// Package observability provides structured logging and metrics for the
// authentication service.
//
// This package implements:
//   - zap logger construction from level and format settings
//   - Prometheus counters for token, ledger and reconciliation outcomes
//   - the /metrics scrape handler
package observability
