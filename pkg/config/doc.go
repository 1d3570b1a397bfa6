// Package config loads the notifier configuration from YAML: the templated
// email properties, the delivery backend, the HTTP server and the signal
// stream settings.
package config
