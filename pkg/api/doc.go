// Package api implements the HTTP surface of the notifier (Gin-based):
// signal submission, health and Prometheus metrics endpoints, with zap access
// logging, per-client rate limiting and graceful shutdown.
package api
