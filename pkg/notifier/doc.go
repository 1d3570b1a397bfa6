// Package notifier turns inbound signals into Mailgun emails. For every signal
// it resolves the configured templates, delivers one message through a scoped
// backend session and emits exactly one result event.
package notifier
