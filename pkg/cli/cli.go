package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/config"
)

type Config struct {
	// Application flags
	Debug bool

	// Configuration flags
	ConfigPath string

	// Overrides applied on top of the configuration file
	ListenAddress   string
	Backend         string
	MailgunBaseURL  string
	Workers         int
	ShutdownTimeout string
}

// BindFlags registers the global flags on fs with environment variable fallbacks.
// The pattern: fs.XxxVar(&variable, "flag-name", defaultValueOrEnvValue, "help text")
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&c.Debug, "debug", getEnvBool("MAILGUN_NOTIFIER_DEBUG", false),
		"Enable debug level logging")
	fs.StringVar(&c.ConfigPath, "config-path", getEnvString("MAILGUN_NOTIFIER_CONFIG_PATH", ""),
		"Path to the notifier configuration file. Built-in defaults are used when empty")

	fs.StringVar(&c.ListenAddress, "listen-address", getEnvString("MAILGUN_NOTIFIER_LISTEN_ADDRESS", ""),
		"Override the HTTP listen address (e.g. ':8080')")
	fs.StringVar(&c.Backend, "backend", getEnvString("MAILGUN_NOTIFIER_BACKEND", ""),
		"Override the delivery backend: 'api' or 'smtp'")
	fs.StringVar(&c.MailgunBaseURL, "mailgun-base-url", getEnvString("MAILGUN_BASE_URL", ""),
		"Override the Mailgun API base URL (e.g. 'https://api.eu.mailgun.net/v3')")
	fs.IntVar(&c.Workers, "workers", getEnvInt("MAILGUN_NOTIFIER_WORKERS", 0),
		"Override the number of stream workers")
	fs.StringVar(&c.ShutdownTimeout, "shutdown-timeout", getEnvString("MAILGUN_NOTIFIER_SHUTDOWN_TIMEOUT", ""),
		"Override the graceful shutdown timeout (e.g. '10s')")
}

// Load reads the configuration file, or the defaults when no path is set, and
// applies the flag overrides.
func (c *Config) Load(log *zap.SugaredLogger) (config.Config, error) {
	cfg := config.Default()
	if c.ConfigPath != "" {
		loaded, err := config.Load(c.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	c.Apply(&cfg, log)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Apply overrides cfg with every flag that was set.
func (c *Config) Apply(cfg *config.Config, log *zap.SugaredLogger) {
	if c.ListenAddress != "" {
		cfg.Server.ListenAddress = c.ListenAddress
	}
	if c.Backend != "" {
		cfg.Backend.Type = c.Backend
	}
	if c.MailgunBaseURL != "" {
		cfg.Backend.API.BaseURL = c.MailgunBaseURL
	}
	if c.Workers > 0 {
		cfg.Stream.Workers = c.Workers
	}
	if c.ShutdownTimeout != "" {
		timeout, err := parseDuration("shutdown-timeout", c.ShutdownTimeout, cfg.Server.ShutdownTimeout)
		if err != nil {
			log.Warn(err)
		}
		cfg.Server.ShutdownTimeout = timeout
	}
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"config_path", c.ConfigPath,
		"listen_address", c.ListenAddress,
		"backend", c.Backend,
		"mailgun_base_url", c.MailgunBaseURL,
		"workers", c.Workers,
		"shutdown_timeout", c.ShutdownTimeout,
	)
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	duration := def
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			duration = d
		} else {
			return duration, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
		}
	}

	return duration, nil
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

// getEnvInt returns the value of an environment variable as an int, or the provided default
// if not set or not a number.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return defaultVal
}
