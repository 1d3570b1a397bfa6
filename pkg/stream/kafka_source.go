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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// KafkaSourceConfig configures a KafkaSource.
type KafkaSourceConfig struct {
	Name    string
	Brokers []string
	Topic   string
	// GroupID is the consumer group. Offsets are committed by the group.
	GroupID string

	TLS  *KafkaTLSConfig
	SASL *KafkaSASLConfig

	// CommitInterval controls how often offsets are flushed.
	// Default: 1 second
	CommitInterval time.Duration
}

// messageReader is the subset of *kafka.Reader used by KafkaSource.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes signals from a Kafka topic as part of a consumer group.
// A message value holds one signal object or an array of signals.
type KafkaSource struct {
	name   string
	reader messageReader
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafkaSource creates a consumer group reader for cfg.Topic.
func NewKafkaSource(cfg KafkaSourceConfig, logger *zap.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}

	tlsConfig, mechanism, err := connectionSecurity(cfg.TLS, cfg.SASL)
	if err != nil {
		return nil, err
	}

	commitInterval := cfg.CommitInterval
	if commitInterval <= 0 {
		commitInterval = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
		Dialer: &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			TLS:           tlsConfig,
			SASLMechanism: mechanism,
		},
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: commitInterval,
	})

	source := newKafkaSource(cfg.Name, reader, logger)
	source.logger.Info("Kafka signal source created",
		zap.String("name", source.name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
		zap.Bool("tls_enabled", tlsConfig != nil),
		zap.Bool("sasl_enabled", mechanism != nil))
	return source, nil
}

func newKafkaSource(name string, reader messageReader, logger *zap.Logger) *KafkaSource {
	if name == "" {
		name = "kafka"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{name: name, reader: reader, logger: logger.Named("kafka-source")}
}

func (s *KafkaSource) Name() string { return s.name }

// Read blocks until the next message arrives. Closing the source turns
// subsequent reads into io.EOF.
func (s *KafkaSource) Read(ctx context.Context) ([]signal.Signal, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, io.EOF
	}

	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("failed to read from Kafka",
			zap.Error(err),
			zap.String("error_type", classifyKafkaError(err)))
		return nil, fmt.Errorf("failed to read from Kafka: %w", err)
	}

	sigs, err := signal.Decode(msg.Value)
	if err != nil {
		s.logger.Warn("skipping undecodable Kafka message",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		return nil, fmt.Errorf("%w: partition %d offset %d: %v", ErrMalformedSignal, msg.Partition, msg.Offset, err)
	}
	return sigs, nil
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	return nil
}
