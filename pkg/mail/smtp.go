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

package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const (
	// DefaultSMTPHost is Mailgun's SMTP relay.
	DefaultSMTPHost = "smtp.mailgun.org"
	// DefaultSMTPPort is the STARTTLS submission port.
	DefaultSMTPPort = 587
)

// SMTPConfig configures delivery through an SMTP relay.
type SMTPConfig struct {
	Host string
	Port int
	// Username overrides the login. When empty "postmaster@<domain>" is used,
	// which is Mailgun's default SMTP login for a sending domain.
	Username           string
	InsecureSkipVerify bool
}

// SMTPBackend delivers messages over SMTP, using the resolved API key as the
// SMTP password.
type SMTPBackend struct {
	host               string
	port               int
	username           string
	insecureSkipVerify bool
	log                *zap.SugaredLogger
}

// NewSMTPBackend creates an SMTP backend, applying Mailgun relay defaults for
// missing host and port.
func NewSMTPBackend(cfg SMTPConfig, log *zap.SugaredLogger) *SMTPBackend {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	host := cfg.Host
	if host == "" {
		host = DefaultSMTPHost
	}
	port := cfg.Port
	if port <= 0 {
		port = DefaultSMTPPort
	}

	log = log.Named("smtp")
	log.Infow("Initializing SMTP mail backend", "host", host, "port", port, "username", cfg.Username)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for SMTP TLS connections", "host", host)
	}

	return &SMTPBackend{
		host:               host,
		port:               port,
		username:           cfg.Username,
		insecureSkipVerify: cfg.InsecureSkipVerify,
		log:                log,
	}
}

func (b *SMTPBackend) Name() string {
	return b.host
}

// Port returns the relay port.
func (b *SMTPBackend) Port() int {
	return b.port
}

// Open dials the relay and authenticates with creds.
func (b *SMTPBackend) Open(ctx context.Context, creds Credentials) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	username := b.username
	if username == "" {
		username = "postmaster@" + creds.Domain
	}

	d := gomail.NewDialer(b.host, b.port, username, creds.APIKey)
	if b.insecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via config
	}

	sc, err := d.Dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP relay %s:%d: %w", b.host, b.port, err)
	}
	b.log.Debugw("SMTP session opened", "host", b.host, "username", username)
	return &smtpSession{sc: sc}, nil
}

type smtpSession struct {
	mu     sync.Mutex
	sc     gomail.SendCloser
	closed bool
}

func (s *smtpSession) Send(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return gomail.Send(s.sc, buildSMTPMessage(msg))
}

func (s *smtpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.sc.Close()
}

func buildSMTPMessage(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	if len(msg.To) > 0 {
		m.SetHeader("To", msg.To...)
	}
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
