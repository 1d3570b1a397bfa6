package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSignalMetricsExistAndIncrement(t *testing.T) {
	SignalsProcessed.WithLabelValues("sent").Inc()
	if v := testutil.ToFloat64(SignalsProcessed.WithLabelValues("sent")); v < 1 {
		t.Fatalf("expected SignalsProcessed{sent} >= 1, got %v", v)
	}

	before := testutil.ToFloat64(TemplateResolutionFailures)
	TemplateResolutionFailures.Inc()
	if v := testutil.ToFloat64(TemplateResolutionFailures); v != before+1 {
		t.Fatalf("expected TemplateResolutionFailures to grow by 1, got %v -> %v", before, v)
	}
}

func TestMailMetricsLabelCardinality(t *testing.T) {
	MailSendSuccess.Reset()
	defer MailSendSuccess.Reset()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MailSendSuccess panicked: %v", r)
		}
	}()

	MailSendSuccess.WithLabelValues("api.mailgun.net").Inc()
	if v := testutil.ToFloat64(MailSendSuccess.WithLabelValues("api.mailgun.net")); v != 1 {
		t.Fatalf("expected metric value 1 after increment, got %v", v)
	}
	MailSendDuration.WithLabelValues("api.mailgun.net").Observe(0.2)
}

func TestMetricsHandlerServesRegisteredMetrics(t *testing.T) {
	StreamSignalsConsumed.WithLabelValues("test").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mailgun_notifier_stream_signals_consumed_total") {
		t.Fatalf("expected stream metric in output")
	}
}
