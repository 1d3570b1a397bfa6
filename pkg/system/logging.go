// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Request-ID"

// SetupLogger builds the process logger: JSON production output, or the
// console development encoder when debug is set. Timestamps are RFC3339 UTC
// under "ts" and stacktraces are only attached by explicit request.
func SetupLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return logger, nil
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// RequestLogger stores a logger annotated with a request ID in the gin
// context. An incoming X-Request-ID header is reused, otherwise a new one is
// generated.
func RequestLogger(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set(ReqLoggerKey, base.With("requestID", requestID, "method", c.Request.Method, "path", c.FullPath()))
		c.Next()
	}
}

// SignalFields returns key/value pairs identifying a signal, suitable for
// SugaredLogger.With or Infow calls. Field values are never included since
// they may carry personal data.
func SignalFields(signalID string, fieldCount int) []interface{} {
	if signalID == "" {
		return []interface{}{"fields", fieldCount}
	}
	return []interface{}{"signalID", signalID, "fields", fieldCount}
}
