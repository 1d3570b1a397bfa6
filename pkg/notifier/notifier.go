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

package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/mail"
	"github.com/telekom/mailgun-notifier/pkg/metrics"
	"github.com/telekom/mailgun-notifier/pkg/signal"
	"github.com/telekom/mailgun-notifier/pkg/system"
	"github.com/telekom/mailgun-notifier/pkg/templating"
)

// SuccessMessage is the message of every successful result.
// TODO: make the success message configurable per deployment.
const SuccessMessage = "Password reset email sent."

// Outcome label values for metrics.SignalsProcessed.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Notifier sends one email per signal. It holds no per-signal state and is
// safe for concurrent use.
type Notifier struct {
	props    config.Notifier
	backend  mail.Backend
	resolver templating.Resolver
	enricher signal.Enricher
	log      *zap.SugaredLogger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithResolver replaces the default template engine.
func WithResolver(r templating.Resolver) Option {
	return func(n *Notifier) {
		if r != nil {
			n.resolver = r
		}
	}
}

// WithEnricher replaces the enricher built from the notifier configuration.
func WithEnricher(e signal.Enricher) Option {
	return func(n *Notifier) {
		if e != nil {
			n.enricher = e
		}
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.log = log
		}
	}
}

// New creates a notifier for the templated properties in props, delivering
// through backend.
func New(props config.Notifier, backend mail.Backend, opts ...Option) *Notifier {
	n := &Notifier{
		props:    props,
		backend:  backend,
		resolver: templating.NewEngine(),
		enricher: signal.NewEnricher(props.EnrichConfig()),
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.Named("notifier")
	return n
}

// ProcessSignal handles one signal and returns exactly one enriched result.
// Every failure, including a panic, is reported as an error result.
func (n *Notifier) ProcessSignal(ctx context.Context, sig signal.Signal) (out signal.Signal) {
	log := n.log.With(system.SignalFields(uuid.NewString(), len(sig))...)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Recovered from panic while processing signal", "panic", r)
			metrics.SignalsProcessed.WithLabelValues(OutcomeFailed).Inc()
			out = n.enrichFailure(sig, fmt.Errorf("panic while processing signal: %v", r), log)
		}
	}()

	result := n.notify(ctx, sig, log)
	out = n.enricher.Enrich(sig, result.Signal())

	if result.Failed() {
		metrics.SignalsProcessed.WithLabelValues(OutcomeFailed).Inc()
	} else {
		metrics.SignalsProcessed.WithLabelValues(OutcomeSent).Inc()
	}
	return out
}

// enrichFailure enriches a failure result like any other. A panicking
// enricher yields the bare result.
func (n *Notifier) enrichFailure(sig signal.Signal, err error, log *zap.SugaredLogger) (out signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Recovered from panic while enriching result", "panic", r)
			out = signal.Failure(err).Signal()
		}
	}()
	return n.enricher.Enrich(sig, signal.Failure(err).Signal())
}

// ProcessSignals handles a batch and returns one result per signal, in order.
func (n *Notifier) ProcessSignals(ctx context.Context, sigs []signal.Signal) []signal.Signal {
	out := make([]signal.Signal, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, n.ProcessSignal(ctx, sig))
	}
	return out
}

func (n *Notifier) notify(ctx context.Context, sig signal.Signal, log *zap.SugaredLogger) signal.Result {
	creds, msg, err := n.Build(sig)
	if err != nil {
		var resErr *templating.ResolutionError
		if errors.As(err, &resErr) {
			metrics.TemplateResolutionFailures.Inc()
		}
		log.Warnw("Failed to build email from signal", "error", err)
		return signal.Failure(err)
	}

	if err := mail.Deliver(ctx, n.backend, creds, msg, log); err != nil {
		log.Warnw("Failed to send email", "domain", creds.Domain, "error", err)
		return signal.Failure(err)
	}
	return signal.Success(SuccessMessage)
}

// Build resolves every templated property against sig and returns the
// credentials and message that ProcessSignal would deliver.
func (n *Notifier) Build(sig signal.Signal) (mail.Credentials, *mail.Message, error) {
	var creds mail.Credentials
	r := resolveInto{resolver: n.resolver, sig: sig}

	creds.Domain = r.one(n.props.Credentials.Domain)
	creds.APIKey = r.one(n.props.Credentials.APIKey)
	from := r.one(n.props.Emails.Sender)
	to := r.list(n.props.Emails.To)
	cc := r.list(n.props.Emails.CC)
	bcc := r.list(n.props.Emails.BCC)
	content := mail.Content{
		Subject: r.one(n.props.Message.Subject),
		Text:    r.one(n.props.Message.Text),
		HTML:    r.one(n.props.Message.HTML),
	}
	if r.err != nil {
		return mail.Credentials{}, nil, r.err
	}

	return creds, mail.NewMessage(from, to, cc, bcc, content), nil
}

// resolveInto resolves templates until the first error and then turns into a no-op.
type resolveInto struct {
	resolver templating.Resolver
	sig      signal.Signal
	err      error
}

func (r *resolveInto) one(tmpl string) string {
	if r.err != nil {
		return ""
	}
	v, err := r.resolver.Resolve(tmpl, r.sig)
	if err != nil {
		r.err = err
		return ""
	}
	return v
}

func (r *resolveInto) list(tmpls []string) []string {
	out := make([]string, 0, len(tmpls))
	for _, tmpl := range tmpls {
		v := r.one(tmpl)
		if r.err != nil {
			return out
		}
		out = append(out, v)
	}
	return out
}
