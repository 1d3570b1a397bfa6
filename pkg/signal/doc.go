// Package signal defines the event model exchanged with the hosting workflow:
// inbound signals, the result event emitted per signal, and the enrichment step
// that merges a result with the signal it was derived from.
package signal
