/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string

	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic results are written to.
	Topic string

	TLS  *KafkaTLSConfig
	SASL *KafkaSASLConfig

	// BatchSize is the number of messages to batch before flushing.
	// Default: 100
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing a batch.
	// Default: 1 second
	BatchTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CompressionCodec for message compression.
	// Valid values: "none", "gzip", "snappy", "lz4", "zstd"
	// Default: "snappy"
	CompressionCodec string
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes result signals to a Kafka topic.
type KafkaSink struct {
	name   string
	writer messageWriter
	logger *zap.Logger
	mu     sync.Mutex
	closed bool

	messagesWritten atomic.Int64
	messagesFailed  atomic.Int64
}

// NewKafkaSink creates a new KafkaSink.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	tlsConfig, mechanism, err := connectionSecurity(cfg.TLS, cfg.SASL)
	if err != nil {
		logger.Error("failed to configure Kafka connection security",
			zap.Error(err),
			zap.Strings("brokers", cfg.Brokers))
		return nil, err
	}
	transport := &kafka.Transport{TLS: tlsConfig, SASL: mechanism}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	compression, ok := compressionCodec(cfg.CompressionCodec)
	if !ok {
		logger.Warn("unknown compression codec, defaulting to snappy",
			zap.String("codec", cfg.CompressionCodec))
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression,
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	sink := newKafkaSink(cfg.Name, writer, logger)
	logger.Info("Kafka result sink created",
		zap.String("name", sink.name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls_enabled", tlsConfig != nil),
		zap.Bool("sasl_enabled", mechanism != nil))

	return sink, nil
}

func newKafkaSink(name string, writer messageWriter, logger *zap.Logger) *KafkaSink {
	if name == "" {
		name = "kafka"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		name:   name,
		writer: writer,
		logger: logger.Named("kafka-sink"),
	}
}

// Write publishes the signals as one batch. Each message is keyed by a fresh
// UUID and carries the result's error flag as a header.
func (s *KafkaSink) Write(ctx context.Context, sigs []signal.Signal) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("kafka sink is closed")
	}
	s.mu.Unlock()

	if len(sigs) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(sigs))
	for _, sig := range sigs {
		value, err := json.Marshal(sig)
		if err != nil {
			s.messagesFailed.Add(1)
			return fmt.Errorf("failed to marshal result signal: %w", err)
		}
		headers := []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		}
		if e, ok := sig["error"].(int); ok {
			headers = append(headers, kafka.Header{Key: "error", Value: []byte(strconv.Itoa(e))})
		}
		messages = append(messages, kafka.Message{
			Key:     []byte(uuid.NewString()),
			Value:   value,
			Headers: headers,
		})
	}

	start := time.Now()
	if err := s.writer.WriteMessages(ctx, messages...); err != nil {
		errorType := classifyKafkaError(err)
		s.messagesFailed.Add(int64(len(messages)))

		logFields := []zap.Field{
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.Duration("duration", time.Since(start)),
			zap.Int("batch_size", len(messages)),
		}
		switch errorType {
		case "network", "timeout":
			s.logger.Warn("Kafka sink temporarily unavailable", logFields...)
		default:
			s.logger.Error("failed to write results to Kafka", logFields...)
		}
		return fmt.Errorf("failed to write to Kafka (%s): %w", errorType, err)
	}

	s.messagesWritten.Add(int64(len(messages)))
	return nil
}

// Close closes the Kafka writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.logger.Info("closing Kafka result sink",
		zap.String("name", s.name),
		zap.Int64("messages_written", s.messagesWritten.Load()),
		zap.Int64("messages_failed", s.messagesFailed.Load()))

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

// Name returns the sink identifier.
func (s *KafkaSink) Name() string {
	return s.name
}

// MessageStats returns message statistics for monitoring.
func (s *KafkaSink) MessageStats() (written, failed int64) {
	return s.messagesWritten.Load(), s.messagesFailed.Load()
}
