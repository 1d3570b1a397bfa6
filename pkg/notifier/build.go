package notifier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/mail"
	"github.com/telekom/mailgun-notifier/pkg/mailgun"
	"github.com/telekom/mailgun-notifier/pkg/templating"
)

// NewBackend creates the delivery backend selected by cfg.Type.
func NewBackend(cfg config.Backend, log *zap.SugaredLogger) (mail.Backend, error) {
	switch cfg.Type {
	case config.BackendAPI, "":
		return mailgun.NewBackend(mailgun.Config{
			BaseURL:            cfg.API.APIBaseURL(),
			Timeout:            cfg.API.Timeout,
			InsecureSkipVerify: cfg.API.InsecureSkipVerify,
		}, log)
	case config.BackendSMTP:
		return mail.NewSMTPBackend(mail.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// NewFromConfig wires a notifier from a loaded configuration: the configured
// backend, a template engine resolving [[NAME]] from cfg.Variables and the
// environment, and the configured enrichment.
func NewFromConfig(cfg config.Config, log *zap.SugaredLogger) (*Notifier, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	backend, err := NewBackend(cfg.Backend, log)
	if err != nil {
		return nil, err
	}
	engine := templating.NewEngine(templating.WithVariables(cfg.Variables))

	n := New(cfg.Notifier, backend, WithResolver(engine), WithLogger(log))
	log.Infow("Notifier configured",
		"backend", cfg.Backend.Type,
		"backendName", backend.Name(),
		"toTemplates", len(cfg.Notifier.Emails.To),
		"ccTemplates", len(cfg.Notifier.Emails.CC),
		"bccTemplates", len(cfg.Notifier.Emails.BCC))
	return n, nil
}

// Backend returns the delivery backend.
func (n *Notifier) Backend() mail.Backend {
	return n.backend
}
