package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/metrics"
)

// ErrSessionClosed is returned when a closed session is used to send.
var ErrSessionClosed = errors.New("mail session is closed")

// Credentials authenticate against the delivery backend. They are resolved per
// signal and never persisted.
type Credentials struct {
	Domain string
	APIKey string
}

// String redacts the API key so credentials can be logged safely.
func (c Credentials) String() string {
	key := ""
	if c.APIKey != "" {
		key = "[REDACTED]"
	}
	return fmt.Sprintf("{Domain:%s APIKey:%s}", c.Domain, key)
}

// Validate checks that both parts of the credentials are present.
func (c Credentials) Validate() error {
	if c.Domain == "" {
		return errors.New("mail domain is required")
	}
	if c.APIKey == "" {
		return errors.New("mail API key is required")
	}
	return nil
}

// Content is the subject and body of a message.
type Content struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Message is one outbound email. Recipient lists are never nil.
type Message struct {
	From string   `json:"from"`
	To   []string `json:"to"`
	CC   []string `json:"cc"`
	BCC  []string `json:"bcc"`
	Content
}

// NewMessage builds a message owning copies of the given recipient lists.
func NewMessage(from string, to, cc, bcc []string, content Content) *Message {
	return &Message{
		From:    from,
		To:      copyList(to),
		CC:      copyList(cc),
		BCC:     copyList(bcc),
		Content: content,
	}
}

// RecipientCount returns the number of To, CC and BCC addresses.
func (m *Message) RecipientCount() int {
	return len(m.To) + len(m.CC) + len(m.BCC)
}

func copyList(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Backend opens delivery sessions.
type Backend interface {
	// Name identifies the backend in logs and metrics, usually its host.
	Name() string
	// Open acquires a session authenticated with creds.
	Open(ctx context.Context, creds Credentials) (Session, error)
}

// Session is a connection to a backend. Close must be called exactly once.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}

// Deliver opens a session on backend, sends msg and releases the session on
// every path. Backend errors are returned unwrapped so their message reaches
// the caller as is.
func Deliver(ctx context.Context, backend Backend, creds Credentials, msg *Message, log *zap.SugaredLogger) (err error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	name := backend.Name()
	start := time.Now()

	defer func() {
		metrics.MailSendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.MailSendFailure.WithLabelValues(name).Inc()
			return
		}
		metrics.MailSendSuccess.WithLabelValues(name).Inc()
	}()

	log.Debugw("Opening mail session", "backend", name, "domain", creds.Domain)
	session, err := backend.Open(ctx, creds)
	if err != nil {
		log.Warnw("Failed to open mail session", "backend", name, "domain", creds.Domain, "error", err)
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warnw("Failed to close mail session", "backend", name, "error", cerr)
			if err == nil {
				err = fmt.Errorf("failed to close mail session: %w", cerr)
			}
		}
	}()

	if err := session.Send(ctx, msg); err != nil {
		log.Warnw("Failed to send mail",
			"backend", name,
			"recipients", msg.RecipientCount(),
			"subject", msg.Subject,
			"error", err)
		return err
	}

	log.Infow("Mail sent",
		"backend", name,
		"recipients", msg.RecipientCount(),
		"subject", msg.Subject,
		"duration", time.Since(start))
	return nil
}
