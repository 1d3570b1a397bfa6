package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/metrics"
	"github.com/telekom/mailgun-notifier/pkg/signal"
	"github.com/telekom/mailgun-notifier/pkg/system"
)

// postSignals accepts one signal object or an array of them and answers with
// an array holding one result per input signal, in input order. Delivery
// failures are reported inside the results; only undecodable input is
// rejected at the HTTP level.
func (s *Server) postSignals(c *gin.Context) {
	log := system.GetReqLogger(c, s.log)

	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = config.DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warnw("Rejecting oversized signal document", "limit", limit)
			c.JSON(http.StatusRequestEntityTooLarge,
				signal.Failure(fmt.Errorf("signal document exceeds %d bytes", limit)).Signal())
			return
		}
		c.JSON(http.StatusBadRequest, signal.Failure(fmt.Errorf("failed to read request body: %w", err)).Signal())
		return
	}

	sigs, err := signal.Decode(body)
	if err != nil {
		log.Warnw("Rejecting undecodable signal document", "error", err)
		c.JSON(http.StatusBadRequest, signal.Failure(fmt.Errorf("invalid signal document: %w", err)).Signal())
		return
	}

	metrics.APISignalsReceived.Add(float64(len(sigs)))
	log.Debugw("Processing submitted signals", "count", len(sigs))

	results := s.proc.ProcessSignals(c.Request.Context(), sigs)
	if results == nil {
		results = []signal.Signal{}
	}
	c.JSON(http.StatusOK, results)
}
