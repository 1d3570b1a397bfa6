package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/stream"
)

func kafkaSecurity(k config.Kafka) (*stream.KafkaTLSConfig, *stream.KafkaSASLConfig, error) {
	var (
		tlsCfg  *stream.KafkaTLSConfig
		saslCfg *stream.KafkaSASLConfig
	)
	if k.TLS.Enabled {
		loaded, err := stream.LoadKafkaTLS(k.TLS.CAFile, k.TLS.CertFile, k.TLS.KeyFile, k.TLS.InsecureSkipVerify)
		if err != nil {
			return nil, nil, err
		}
		tlsCfg = loaded
	}
	if k.SASL.Mechanism != "" {
		saslCfg = &stream.KafkaSASLConfig{
			Mechanism: k.SASL.Mechanism,
			Username:  k.SASL.Username,
			Password:  k.SASL.Password,
		}
	}
	return tlsCfg, saslCfg, nil
}

// newSource builds the configured signal source. Stdio reads rt.input.
func (rt *runtimeState) newSource(cfg config.Stream) (stream.Source, error) {
	switch cfg.Input {
	case config.StreamStdio, "":
		return stream.NewJSONSource("stdin", rt.input), nil
	case config.StreamKafka:
		tlsCfg, saslCfg, err := kafkaSecurity(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return stream.NewKafkaSource(stream.KafkaSourceConfig{
			Name:    "kafka:" + cfg.Kafka.InputTopic,
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.InputTopic,
			GroupID: cfg.Kafka.GroupID,
			TLS:     tlsCfg,
			SASL:    saslCfg,
		}, rt.Logger())
	default:
		return nil, fmt.Errorf("unknown stream input %q", cfg.Input)
	}
}

// newSink builds the configured result sink. Stdio writes to rt.Writer().
func (rt *runtimeState) newSink(cfg config.Stream) (stream.Sink, error) {
	switch cfg.Output {
	case config.StreamStdio, "":
		return stream.NewJSONSink("stdout", rt.Writer()), nil
	case config.StreamKafka:
		tlsCfg, saslCfg, err := kafkaSecurity(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return stream.NewKafkaSink(stream.KafkaSinkConfig{
			Name:             "kafka:" + cfg.Kafka.OutputTopic,
			Brokers:          cfg.Kafka.Brokers,
			Topic:            cfg.Kafka.OutputTopic,
			TLS:              tlsCfg,
			SASL:             saslCfg,
			BatchSize:        cfg.Kafka.BatchSize,
			BatchTimeout:     cfg.Kafka.BatchTimeout,
			CompressionCodec: cfg.Kafka.Compression,
		}, rt.Logger())
	default:
		return nil, fmt.Errorf("unknown stream output %q", cfg.Output)
	}
}

func runnerConfig(cfg config.Stream) stream.RunnerConfig {
	return stream.RunnerConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Rate:      cfg.RateLimit.Rate,
		Burst:     cfg.RateLimit.Burst,
	}
}

func closeAll(log *zap.SugaredLogger, closers ...interface{ Close() error }) {
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warnw("Failed to close stream endpoint", "error", err)
		}
	}
}
