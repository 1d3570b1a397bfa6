package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/mailgun-notifier/pkg/config"
	"github.com/telekom/mailgun-notifier/pkg/metrics"
	"github.com/telekom/mailgun-notifier/pkg/ratelimit"
	"github.com/telekom/mailgun-notifier/pkg/signal"
	"github.com/telekom/mailgun-notifier/pkg/system"
	"github.com/telekom/mailgun-notifier/pkg/version"
)

// Processor turns a batch of signals into one result per signal, in order.
type Processor interface {
	ProcessSignals(ctx context.Context, sigs []signal.Signal) []signal.Signal
}

type Server struct {
	gin     *gin.Engine
	config  config.Server
	log     *zap.SugaredLogger
	proc    Processor
	limiter *ratelimit.Limiter
}

func NewServer(log *zap.Logger, cfg config.Server, debug bool, proc Processor) (*Server, error) {
	if proc == nil {
		return nil, errors.New("a signal processor is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "http://127.0.0.1:8080"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Content-Type", system.RequestIDHeader},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("api"),
		proc:   proc,
	}

	engine.GET("healthz", s.getHealth)
	engine.GET("metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("api", system.RequestLogger(s.log))
	api.GET("version", s.getVersion)

	signalHandlers := []gin.HandlerFunc{}
	if !cfg.RateLimit.Disabled {
		opts := []ratelimit.Option{}
		if cfg.RateLimit.ClientIDHeader != "" {
			opts = append(opts, ratelimit.WithKeyFunc(ratelimit.HeaderOrClientIP(cfg.RateLimit.ClientIDHeader)))
		}
		rlCfg := ratelimit.DefaultSignalsConfig()
		if cfg.RateLimit.Rate > 0 {
			rlCfg.Rate = cfg.RateLimit.Rate
		}
		if cfg.RateLimit.Burst > 0 {
			rlCfg.Burst = cfg.RateLimit.Burst
		}
		s.limiter = ratelimit.New(rlCfg, opts...)
		signalHandlers = append(signalHandlers, s.limiter.Middleware())
	}
	signalHandlers = append(signalHandlers, s.postSignals)
	api.POST("signals", signalHandlers...)

	return s, nil
}

// Handler exposes the gin engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln. When ctx is cancelled, in-flight requests get
// up to the configured shutdown timeout to complete.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Starting HTTP server", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.log.Infow("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Close releases background resources such as the rate limiter.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
