// Package observability provides structured logging, Prometheus metrics
// and graceful shutdown handling for the rbacd service.
package observability
