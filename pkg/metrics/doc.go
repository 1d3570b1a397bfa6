// Package metrics defines Prometheus metrics for the mailgun notifier,
// covering processed signals, template resolution, mail delivery per backend
// and the signal stream runner.
package metrics
