package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/telekom/mailgun-notifier/pkg/mailgun"
	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// Defaults applied to an empty notifier configuration.
const (
	DefaultDomain        = "[[MAILGUN_DOMAIN]]"
	DefaultAPIKey        = "[[MAILGUN_API_KEY]]"
	DefaultSender        = "<no-reply@mydomain.com>"
	DefaultRecipient     = "{{ $email }}"
	DefaultSubject       = "Subject"
	DefaultText          = "Message text"
	DefaultHTML          = "<b>Message HTML</b>"
	DefaultListenAddress = ":8080"
	DefaultConfigPath    = "./config.yaml"
	DefaultMaxBodyBytes  = 1 << 20
)

// Backend types.
const (
	BackendAPI  = "api"
	BackendSMTP = "smtp"
)

// Stream endpoints.
const (
	StreamStdio = "stdio"
	StreamKafka = "kafka"
)

// Credentials holds the domain and API key templates.
type Credentials struct {
	Domain string `yaml:"domain"`
	APIKey string `yaml:"apiKey"`
}

// Emails holds the sender and recipient templates. Each list entry is
// resolved on its own.
type Emails struct {
	Sender string   `yaml:"sender"`
	To     []string `yaml:"to"`
	CC     []string `yaml:"cc"`
	BCC    []string `yaml:"bcc"`
}

// Message holds the subject and body templates. A key present in the config
// file keeps its value even when empty. Only absent keys receive defaults.
type Message struct {
	Subject string `yaml:"subject"`
	Text    string `yaml:"text"`
	HTML    string `yaml:"html"`

	subjectSet, textSet, htmlSet bool
}

// UnmarshalYAML records which message keys the file sets.
func (m *Message) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Subject *string `yaml:"subject"`
		Text    *string `yaml:"text"`
		HTML    *string `yaml:"html"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	m.Subject, m.subjectSet = derefSet(raw.Subject)
	m.Text, m.textSet = derefSet(raw.Text)
	m.HTML, m.htmlSet = derefSet(raw.HTML)
	return nil
}

func derefSet(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

// Notifier is the per-signal email configuration. Every string is a template.
type Notifier struct {
	Credentials Credentials          `yaml:"credentials"`
	Emails      Emails               `yaml:"emails"`
	Message     Message              `yaml:"message"`
	Enrich      *signal.EnrichConfig `yaml:"enrich"`
}

// EnrichConfig returns the enrichment settings, defaulting to result-only.
func (n Notifier) EnrichConfig() signal.EnrichConfig {
	if n.Enrich == nil {
		return signal.DefaultEnrichConfig()
	}
	return *n.Enrich
}

// API configures the Mailgun HTTP API backend.
type API struct {
	BaseURL            string        `yaml:"baseURL"`
	Region             string        `yaml:"region"` // "us" or "eu", ignored when baseURL is set
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
}

// SMTP configures the Mailgun SMTP relay backend.
type SMTP struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

type Backend struct {
	Type string `yaml:"type"`
	API  API    `yaml:"api"`
	SMTP SMTP   `yaml:"smtp"`
}

type Server struct {
	ListenAddress   string        `yaml:"listenAddress"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	TrustedProxies  []string      `yaml:"trustedProxies"`
	RateLimit       APIRateLimit  `yaml:"rateLimit"`
	// MaxBodyBytes bounds a POST /api/signals body.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// APIRateLimit throttles signal submission per client.
type APIRateLimit struct {
	Disabled bool    `yaml:"disabled"`
	Rate     float64 `yaml:"rate"`
	Burst    int     `yaml:"burst"`
	// ClientIDHeader keys buckets by this header instead of the client IP.
	ClientIDHeader string `yaml:"clientIDHeader"`
}

type KafkaTLS struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"caFile"`
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

type KafkaSASL struct {
	// Mechanism is one of PLAIN, SCRAM-SHA-256, SCRAM-SHA-512.
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	InputTopic   string        `yaml:"inputTopic"`
	OutputTopic  string        `yaml:"outputTopic"`
	GroupID      string        `yaml:"groupID"`
	Compression  string        `yaml:"compression"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	TLS          KafkaTLS      `yaml:"tls"`
	SASL         KafkaSASL     `yaml:"sasl"`
}

type RateLimit struct {
	// Rate is the number of signals per second; 0 disables limiting.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type Stream struct {
	Input     string    `yaml:"input"`
	Output    string    `yaml:"output"`
	Workers   int       `yaml:"workers"`
	QueueSize int       `yaml:"queueSize"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Kafka     Kafka     `yaml:"kafka"`
}

type Config struct {
	Notifier  Notifier          `yaml:"notifier"`
	Backend   Backend           `yaml:"backend"`
	Server    Server            `yaml:"server"`
	Stream    Stream            `yaml:"stream"`
	Variables map[string]string `yaml:"variables"`
}

// Load reads the notifier configuration from a file path and applies defaults.
// If configPath is empty, defaults to "./config.yaml".
func Load(configPath ...string) (Config, error) {
	path := DefaultConfigPath
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open notifier config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	config.Defaults()
	return config, nil
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.Defaults()
	return c
}

// Defaults fills unset fields. Enrichment defaults to result-only when the
// enrich section is left out entirely.
func (c *Config) Defaults() {
	n := &c.Notifier
	if n.Credentials.Domain == "" {
		n.Credentials.Domain = DefaultDomain
	}
	if n.Credentials.APIKey == "" {
		n.Credentials.APIKey = DefaultAPIKey
	}
	if n.Emails.Sender == "" {
		n.Emails.Sender = DefaultSender
	}
	if n.Emails.To == nil {
		n.Emails.To = []string{DefaultRecipient}
	}
	fillEmpty(n.Emails.To)
	fillEmpty(n.Emails.CC)
	fillEmpty(n.Emails.BCC)
	if n.Message.Subject == "" && !n.Message.subjectSet {
		n.Message.Subject = DefaultSubject
	}
	if n.Message.Text == "" && !n.Message.textSet {
		n.Message.Text = DefaultText
	}
	if n.Message.HTML == "" && !n.Message.htmlSet {
		n.Message.HTML = DefaultHTML
	}
	if n.Enrich == nil {
		enrich := signal.DefaultEnrichConfig()
		n.Enrich = &enrich
	}

	if c.Backend.Type == "" {
		c.Backend.Type = BackendAPI
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Server.RateLimit.Rate == 0 {
		c.Server.RateLimit.Rate = 20
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = 50
	}

	s := &c.Stream
	if s.Input == "" {
		s.Input = StreamStdio
	}
	if s.Output == "" {
		s.Output = StreamStdio
	}
	if s.Workers <= 0 {
		s.Workers = 4
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 100
	}
	if s.Kafka.GroupID == "" {
		s.Kafka.GroupID = "mailgun-notifier"
	}
}

// fillEmpty replaces blank recipient entries with the default recipient template.
func fillEmpty(list []string) {
	for i := range list {
		if list[i] == "" {
			list[i] = DefaultRecipient
		}
	}
}

// Validate reports configuration errors that would prevent startup.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend.Type {
	case BackendAPI:
		if c.Backend.API.Region != "" && c.Backend.API.Region != "us" && c.Backend.API.Region != "eu" {
			errs = append(errs, fmt.Errorf("backend.api.region must be \"us\" or \"eu\", got %q", c.Backend.API.Region))
		}
	case BackendSMTP:
		if c.Backend.SMTP.Port < 0 || c.Backend.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("backend.smtp.port %d is out of range", c.Backend.SMTP.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q (expected %q or %q)", c.Backend.Type, BackendAPI, BackendSMTP))
	}

	s := c.Stream
	if s.Workers < 1 {
		errs = append(errs, errors.New("stream.workers must be at least 1"))
	}
	if !c.Server.RateLimit.Disabled && c.Server.RateLimit.Rate < 0 {
		errs = append(errs, errors.New("server.rateLimit.rate must not be negative"))
	}
	if s.RateLimit.Rate < 0 {
		errs = append(errs, errors.New("stream.rateLimit.rate must not be negative"))
	}
	for _, ep := range []struct{ field, value string }{{"stream.input", s.Input}, {"stream.output", s.Output}} {
		if ep.value != StreamStdio && ep.value != StreamKafka {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", ep.field, StreamStdio, StreamKafka, ep.value))
		}
	}
	if s.Input == StreamKafka || s.Output == StreamKafka {
		if len(s.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("stream.kafka.brokers is required when kafka is used"))
		}
	}
	if s.Input == StreamKafka && s.Kafka.InputTopic == "" {
		errs = append(errs, errors.New("stream.kafka.inputTopic is required for kafka input"))
	}
	if s.Output == StreamKafka && s.Kafka.OutputTopic == "" {
		errs = append(errs, errors.New("stream.kafka.outputTopic is required for kafka output"))
	}

	return errors.Join(errs...)
}

// APIBaseURL returns the Mailgun endpoint for the configured region.
func (a API) APIBaseURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	if a.Region == "eu" {
		return mailgun.EUBaseURL
	}
	return mailgun.DefaultBaseURL
}
