package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/signal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
notifier:
  credentials:
    domain: "mg.example.com"
    apiKey: "[[MAILGUN_API_KEY]]"
  emails:
    sender: "Support <support@example.com>"
    to:
      - "{{ $email }}"
      - "audit@example.com"
    cc: []
    bcc:
      - ""
  message:
    subject: "Reset your password"
    text: "Hello {{ $name }}"
    html: "<p>Hello {{ $name }}</p>"
  enrich:
    excludeExisting: false
    enrichField: "mail"
backend:
  type: smtp
  smtp:
    host: smtp.eu.mailgun.org
    port: 2525
server:
  listenAddress: ":9090"
  shutdownTimeout: 3s
stream:
  input: kafka
  output: stdio
  workers: 8
  rateLimit:
    rate: 5
    burst: 10
  kafka:
    brokers: ["localhost:9092"]
    inputTopic: signals
    batchTimeout: 500ms
    sasl:
      mechanism: SCRAM-SHA-512
variables:
  MAILGUN_API_KEY: key-123
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	n := cfg.Notifier
	assert.Equal(t, "mg.example.com", n.Credentials.Domain)
	assert.Equal(t, "[[MAILGUN_API_KEY]]", n.Credentials.APIKey)
	assert.Equal(t, "Support <support@example.com>", n.Emails.Sender)
	assert.Equal(t, []string{"{{ $email }}", "audit@example.com"}, n.Emails.To)
	assert.Empty(t, n.Emails.CC)
	assert.Equal(t, []string{config.DefaultRecipient}, n.Emails.BCC, "blank entries use the default recipient")
	assert.Equal(t, "Reset your password", n.Message.Subject)
	assert.Equal(t, signal.EnrichConfig{ExcludeExisting: false, EnrichField: "mail"}, n.EnrichConfig())

	assert.Equal(t, config.BackendSMTP, cfg.Backend.Type)
	assert.Equal(t, 2525, cfg.Backend.SMTP.Port)
	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, config.StreamKafka, cfg.Stream.Input)
	assert.Equal(t, 8, cfg.Stream.Workers)
	assert.Equal(t, 5.0, cfg.Stream.RateLimit.Rate)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.Kafka.BatchTimeout)
	assert.Equal(t, "mailgun-notifier", cfg.Stream.Kafka.GroupID)
	assert.Equal(t, "SCRAM-SHA-512", cfg.Stream.Kafka.SASL.Mechanism)
	assert.Equal(t, map[string]string{"MAILGUN_API_KEY": "key-123"}, cfg.Variables)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trying to open notifier config file")

	_, err = config.Load(writeConfig(t, "notifier: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error unmarshaling YAML")
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	n := cfg.Notifier
	assert.Equal(t, "[[MAILGUN_DOMAIN]]", n.Credentials.Domain)
	assert.Equal(t, "[[MAILGUN_API_KEY]]", n.Credentials.APIKey)
	assert.Equal(t, "<no-reply@mydomain.com>", n.Emails.Sender)
	assert.Equal(t, []string{"{{ $email }}"}, n.Emails.To)
	assert.Nil(t, n.Emails.CC)
	assert.Nil(t, n.Emails.BCC)
	assert.Equal(t, "Subject", n.Message.Subject)
	assert.Equal(t, "Message text", n.Message.Text)
	assert.Equal(t, "<b>Message HTML</b>", n.Message.HTML)
	assert.Equal(t, signal.DefaultEnrichConfig(), n.EnrichConfig())

	assert.Equal(t, config.BackendAPI, cfg.Backend.Type)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, config.StreamStdio, cfg.Stream.Input)
	assert.Equal(t, config.StreamStdio, cfg.Stream.Output)
	assert.Equal(t, 4, cfg.Stream.Workers)
	assert.Equal(t, int64(config.DefaultMaxBodyBytes), cfg.Server.MaxBodyBytes)
	assert.Equal(t, float64(20), cfg.Server.RateLimit.Rate)
	assert.Equal(t, 50, cfg.Server.RateLimit.Burst)
	assert.False(t, cfg.Server.RateLimit.Disabled)
	assert.NoError(t, cfg.Validate())

	// secure defaults
	assert.False(t, cfg.Backend.API.InsecureSkipVerify)
	assert.False(t, cfg.Backend.SMTP.InsecureSkipVerify)
	assert.False(t, cfg.Stream.Kafka.TLS.InsecureSkipVerify)
}

func TestDefaults_ExplicitEmptyToIsKept(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "notifier:\n  emails:\n    to: []\n"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Notifier.Emails.To)
	assert.Empty(t, cfg.Notifier.Emails.To)
}

func TestDefaults_ExplicitEmptyMessagePartsAreKept(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantSubject string
		wantText    string
		wantHTML    string
	}{
		{
			name:        "html only",
			message:     "    text: \"\"\n    html: \"<p>hi</p>\"\n",
			wantSubject: config.DefaultSubject,
			wantText:    "",
			wantHTML:    "<p>hi</p>",
		},
		{
			name:        "text only",
			message:     "    text: plain\n    html: ''\n",
			wantSubject: config.DefaultSubject,
			wantText:    "plain",
			wantHTML:    "",
		},
		{
			name:        "empty subject",
			message:     "    subject: \"\"\n",
			wantSubject: "",
			wantText:    config.DefaultText,
			wantHTML:    config.DefaultHTML,
		},
		{
			name:        "null keeps default",
			message:     "    text:\n",
			wantSubject: config.DefaultSubject,
			wantText:    config.DefaultText,
			wantHTML:    config.DefaultHTML,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, "notifier:\n  message:\n"+tt.message))
			require.NoError(t, err)

			m := cfg.Notifier.Message
			assert.Equal(t, tt.wantSubject, m.Subject)
			assert.Equal(t, tt.wantText, m.Text)
			assert.Equal(t, tt.wantHTML, m.HTML)
		})
	}
}

func TestDefaults_MissingToUsesEmailTemplate(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "notifier:\n  emails:\n    sender: a@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{config.DefaultRecipient}, cfg.Notifier.Emails.To)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		errPart string
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.Backend.Type = "sendgrid" }, errPart: `unknown backend type "sendgrid"`},
		{name: "bad region", mutate: func(c *config.Config) { c.Backend.API.Region = "ap" }, errPart: "backend.api.region"},
		{name: "smtp port range", mutate: func(c *config.Config) { c.Backend.Type = "smtp"; c.Backend.SMTP.Port = 70000 }, errPart: "out of range"},
		{name: "workers", mutate: func(c *config.Config) { c.Stream.Workers = 0 }, errPart: "stream.workers"},
		{name: "negative rate", mutate: func(c *config.Config) { c.Stream.RateLimit.Rate = -1 }, errPart: "stream.rateLimit.rate"},
		{name: "negative api rate", mutate: func(c *config.Config) { c.Server.RateLimit.Rate = -5 }, errPart: "server.rateLimit.rate"},
		{name: "unknown input", mutate: func(c *config.Config) { c.Stream.Input = "file" }, errPart: "stream.input"},
		{name: "kafka without brokers", mutate: func(c *config.Config) {
			c.Stream.Output = config.StreamKafka
			c.Stream.Kafka.OutputTopic = "results"
		}, errPart: "stream.kafka.brokers"},
		{name: "kafka input without topic", mutate: func(c *config.Config) {
			c.Stream.Input = config.StreamKafka
			c.Stream.Kafka.Brokers = []string{"b:9092"}
		}, errPart: "stream.kafka.inputTopic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestAPIBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.mailgun.net/v3", config.API{}.APIBaseURL())
	assert.Equal(t, "https://api.eu.mailgun.net/v3", config.API{Region: "eu"}.APIBaseURL())
	assert.Equal(t, "http://localhost:1234", config.API{BaseURL: "http://localhost:1234", Region: "eu"}.APIBaseURL())
}
