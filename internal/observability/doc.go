// Package observability provides structured logging and in-process metrics
// for the workflow runner.
//
// This package implements:
//   - zap logger construction from configuration
//   - Request ID propagation into log fields
//   - Step and provider attempt counters for the pipeline
package observability
