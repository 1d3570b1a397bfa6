// Package cmd implements the cobra command tree for the mailgun-notifier
// binary: the HTTP API server, the stream runner, one-shot sends and version
// output.
package cmd
