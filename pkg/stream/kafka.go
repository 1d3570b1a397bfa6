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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// KafkaTLSConfig holds TLS configuration for Kafka connections.
type KafkaTLSConfig struct {
	// Enabled turns on TLS for the Kafka connection.
	Enabled bool

	// CACert is the PEM-encoded CA certificate for verifying the server.
	CACert []byte

	// ClientCert is the PEM-encoded client certificate for mTLS.
	ClientCert []byte

	// ClientKey is the PEM-encoded client private key for mTLS.
	ClientKey []byte

	// InsecureSkipVerify skips server certificate verification.
	// WARNING: Only use for testing.
	InsecureSkipVerify bool
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is the SASL mechanism to use.
	// Valid values: "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"
	Mechanism string

	// Username for SASL authentication.
	Username string

	// Password for SASL authentication.
	Password string
}

// LoadKafkaTLS reads PEM material from the given files. Empty paths are skipped.
func LoadKafkaTLS(caFile, certFile, keyFile string, insecureSkipVerify bool) (*KafkaTLSConfig, error) {
	cfg := &KafkaTLSConfig{Enabled: true, InsecureSkipVerify: insecureSkipVerify}
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{{caFile, &cfg.CACert}, {certFile, &cfg.ClientCert}, {keyFile, &cfg.ClientKey}} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read Kafka TLS file: %w", err)
		}
		*f.dst = data
	}
	return cfg, nil
}

// buildTLSConfig creates a TLS configuration from KafkaTLSConfig.
func buildTLSConfig(cfg *KafkaTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Configurable for testing
	}

	if len(cfg.CACert) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(cfg.CACert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if len(cfg.ClientCert) > 0 && len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// buildSASLMechanism creates a SASL mechanism from KafkaSASLConfig.
func buildSASLMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	switch strings.ToUpper(cfg.Mechanism) {
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}, nil
	case "SCRAM-SHA-256":
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %w", err)
		}
		return mechanism, nil
	case "SCRAM-SHA-512":
		mechanism, err := scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-512 mechanism: %w", err)
		}
		return mechanism, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}

// connectionSecurity resolves optional TLS and SASL settings.
func connectionSecurity(tlsCfg *KafkaTLSConfig, saslCfg *KafkaSASLConfig) (*tls.Config, sasl.Mechanism, error) {
	var (
		tlsConfig *tls.Config
		mechanism sasl.Mechanism
		err       error
	)
	if tlsCfg != nil && tlsCfg.Enabled {
		if tlsConfig, err = buildTLSConfig(tlsCfg); err != nil {
			return nil, nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
	}
	if saslCfg != nil && saslCfg.Mechanism != "" {
		if mechanism, err = buildSASLMechanism(saslCfg); err != nil {
			return nil, nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
	}
	return tlsConfig, mechanism, nil
}

// compressionCodec maps a codec name to kafka-go's value. ok is false for
// unknown names, which fall back to snappy.
func compressionCodec(name string) (codec kafka.Compression, ok bool) {
	switch strings.ToLower(name) {
	case "none":
		return 0, true
	case "gzip":
		return kafka.Gzip, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	case "snappy", "":
		return kafka.Snappy, true
	default:
		return kafka.Snappy, false
	}
}

// classifyKafkaError categorizes Kafka errors for logging.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "authorization") || strings.Contains(errStr, "ACL"):
		return "authorization"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "broker") || strings.Contains(errStr, "leader"):
		return "broker"
	case strings.Contains(errStr, "topic"):
		return "topic"
	case strings.Contains(errStr, "TLS") || strings.Contains(errStr, "certificate"):
		return "tls"
	default:
		return "other"
	}
}
