package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Notifier metrics
	SignalsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_signals_processed_total",
		Help: "Total number of signals processed, by outcome (sent/failed)",
	}, []string{"outcome"})
	TemplateResolutionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailgun_notifier_template_resolution_failures_total",
		Help: "Total number of signals whose property templates could not be resolved",
	})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"backend"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"backend"})
	MailSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailgun_notifier_mail_send_duration_seconds",
		Help:    "Time spent opening a backend session and sending one message",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})

	// Stream runner metrics
	StreamSignalsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_stream_signals_consumed_total",
		Help: "Total number of signals read from a stream source",
	}, []string{"source"})
	StreamResultsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_stream_results_published_total",
		Help: "Total number of result signals written to a stream sink",
	}, []string{"sink"})
	StreamPublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_stream_publish_errors_total",
		Help: "Total number of failed writes to a stream sink",
	}, []string{"sink"})

	// API metrics
	APISignalsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mailgun_notifier_api_signals_received_total",
		Help: "Total number of signals accepted by the HTTP API",
	})
	APIRequestsRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgun_notifier_api_requests_rate_limited_total",
		Help: "Total number of HTTP requests rejected by the rate limiter",
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(SignalsProcessed)
	prometheus.MustRegister(TemplateResolutionFailures)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailSendDuration)
	prometheus.MustRegister(StreamSignalsConsumed)
	prometheus.MustRegister(StreamResultsPublished)
	prometheus.MustRegister(StreamPublishErrors)
	prometheus.MustRegister(APISignalsReceived)
	prometheus.MustRegister(APIRequestsRateLimited)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
