package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetupLogger(t *testing.T) {
	for _, debug := range []bool{false, true} {
		logger, err := SetupLogger(debug)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, debug, logger.Core().Enabled(zap.DebugLevel))
		logger.Info("setup logger works")
	}
}

func TestGetReqLoggerFallbackWhenContextNil(t *testing.T) {
	fallback := zap.NewNop().Sugar()
	require.Same(t, fallback, GetReqLogger(nil, fallback))
}

func TestGetReqLoggerFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	fallback := zap.NewNop().Sugar()
	stored := zap.NewNop().Sugar()
	ctx.Set(ReqLoggerKey, stored)
	require.Same(t, stored, GetReqLogger(ctx, fallback))
}

func TestGetReqLoggerIgnoresInvalidTypes(t *testing.T) {
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	fallback := zap.NewNop().Sugar()
	ctx.Set(ReqLoggerKey, "not-a-logger")
	require.Same(t, fallback, GetReqLogger(ctx, fallback))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zap.DebugLevel)
	base := zap.New(core).Sugar()

	r := gin.New()
	r.Use(RequestLogger(base))
	r.GET("/ping", func(c *gin.Context) {
		GetReqLogger(c, nil).Infow("handled")
		c.Status(http.StatusNoContent)
	})

	t.Run("generates request ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("reuses incoming request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

		entries := recorded.All()
		require.NotEmpty(t, entries)
		fields := entries[len(entries)-1].ContextMap()
		assert.Equal(t, "req-42", fields["requestID"])
		assert.Equal(t, "/ping", fields["path"])
		assert.Equal(t, http.MethodGet, fields["method"])
	})
}

func TestSignalFields(t *testing.T) {
	require.Equal(t, []interface{}{"signalID", "abc", "fields", 3}, SignalFields("abc", 3))
	require.Equal(t, []interface{}{"fields", 0}, SignalFields("", 0))
}
