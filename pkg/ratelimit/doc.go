// Package ratelimit provides per-client token-bucket rate limiting middleware
// for the signal API, keyed by client IP or a caller-supplied header, with
// automatic stale-entry cleanup.
package ratelimit
