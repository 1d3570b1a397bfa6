// Package stream connects the notifier to signal streams. A Runner reads
// signals from a Source, processes them on a bounded worker pool and writes
// one result per signal to a Sink. JSON-lines and Kafka endpoints are provided.
package stream
