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

package mailgun

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/mail"
	"github.com/telekom/mailgun-notifier/pkg/version"
)

const (
	// DefaultBaseURL is the US region API endpoint.
	DefaultBaseURL = "https://api.mailgun.net/v3"
	// EUBaseURL is the EU region API endpoint.
	EUBaseURL = "https://api.eu.mailgun.net/v3"
	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 30 * time.Second
)

// Config configures the API backend.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
}

// SendResponse is returned by Mailgun for an accepted message.
type SendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// APIError is a non-2xx answer from the Mailgun API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailgun API error (%d): %s", e.StatusCode, e.Message)
}

// Backend opens Mailgun API connections.
type Backend struct {
	baseURL            string
	host               string
	timeout            time.Duration
	insecureSkipVerify bool
	userAgent          string
	log                *zap.SugaredLogger
}

// NewBackend validates cfg and returns a backend. Missing values fall back to
// the US endpoint and DefaultTimeout.
func NewBackend(cfg Config, log *zap.SugaredLogger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mailgun base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid mailgun base URL %q: scheme and host are required", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	log = log.Named("mailgun")
	log.Infow("Initializing Mailgun API backend", "baseURL", baseURL, "timeout", timeout)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for Mailgun API connections", "baseURL", baseURL)
	}

	return &Backend{
		baseURL:            baseURL,
		host:               parsed.Host,
		timeout:            timeout,
		insecureSkipVerify: cfg.InsecureSkipVerify,
		userAgent:          userAgent,
		log:                log,
	}, nil
}

func (b *Backend) Name() string {
	return b.host
}

// BaseURL returns the API endpoint messages are posted to.
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Open creates a connection authenticated as "api" with the resolved key.
func (b *Backend) Open(ctx context.Context, creds mail.Credentials) (mail.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	client := resty.New().
		SetLogger(b.log).
		SetBaseURL(b.baseURL).
		SetBasicAuth("api", creds.APIKey).
		SetTimeout(b.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", b.userAgent).
		SetTLSClientConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: b.insecureSkipVerify, // #nosec G402 -- opt-in via config
		})

	b.log.Debugw("Mailgun connection opened", "domain", creds.Domain)
	return &Conn{client: client, domain: creds.Domain, log: b.log}, nil
}

// Conn is a mail.Session bound to one sending domain.
type Conn struct {
	mu     sync.Mutex
	client *resty.Client
	domain string
	closed bool
	log    *zap.SugaredLogger
}

// Send posts msg to the domain's messages endpoint.
func (c *Conn) Send(ctx context.Context, msg *mail.Message) error {
	_, err := c.SendMessage(ctx, msg)
	return err
}

// SendMessage is Send that also returns Mailgun's acceptance response.
func (c *Conn) SendMessage(ctx context.Context, msg *mail.Message) (*SendResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, mail.ErrSessionClosed
	}
	client := c.client
	c.mu.Unlock()

	var apiErr errorResponse
	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("domain", c.domain).
		SetFormDataFromValues(formValues(msg)).
		SetResult(&SendResponse{}).
		SetError(&apiErr).
		Post("/{domain}/messages")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = strings.TrimSpace(string(resp.Body()))
		}
		if message == "" {
			message = resp.Status()
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: message}
	}

	out, _ := resp.Result().(*SendResponse)
	if out == nil {
		out = &SendResponse{}
	}
	c.log.Debugw("Mailgun accepted message", "domain", c.domain, "id", out.ID, "status", resp.StatusCode())
	return out, nil
}

// Close releases idle HTTP connections. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.client.GetClient().CloseIdleConnections()
	return nil
}

// formValues encodes msg as Mailgun form fields. Empty recipient lists and
// empty bodies are left out.
func formValues(msg *mail.Message) url.Values {
	v := url.Values{}
	v.Set("from", msg.From)
	for _, addr := range msg.To {
		v.Add("to", addr)
	}
	for _, addr := range msg.CC {
		v.Add("cc", addr)
	}
	for _, addr := range msg.BCC {
		v.Add("bcc", addr)
	}
	v.Set("subject", msg.Subject)
	if msg.Text != "" {
		v.Set("text", msg.Text)
	}
	if msg.HTML != "" {
		v.Set("html", msg.HTML)
	}
	return v
}
