// Package server wires the relay's HTTP surface and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"
	appconfig "github.com/lewisedginton/aiboy_relay/internal/config"
	"github.com/lewisedginton/aiboy_relay/internal/handlers"
	"github.com/lewisedginton/aiboy_relay/internal/models/openai"
	"github.com/lewisedginton/aiboy_relay/internal/relay"
	"github.com/lewisedginton/aiboy_relay/pkg/health"
	"github.com/lewisedginton/aiboy_relay/pkg/health/checkers"
	"github.com/lewisedginton/aiboy_relay/pkg/httpmiddleware"
	"github.com/lewisedginton/aiboy_relay/pkg/logger"
	"github.com/lewisedginton/aiboy_relay/pkg/metrics"
	"github.com/lewisedginton/aiboy_relay/pkg/utils"
)

const (
	// ChatPath is the only relay route.
	ChatPath = "/chat"

	livenessPath  = "/health/live"
	readinessPath = "/health/ready"
)

// Server encapsulates the relay's components and lifecycle management
type Server struct {
	cfg     *appconfig.AppConfig
	log     logger.Logger
	metrics *metrics.Metrics
	health  *health.Checker
	router  chi.Router

	mu        sync.Mutex
	addr      net.Addr
	listening chan struct{}
}

// New creates a new Server instance with all components initialized
func New(cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		log:       log,
		listening: make(chan struct{}),
	}

	s.metrics = metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableUpstreamMetrics, log)

	completer, err := openai.New(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.APIBaseURL,
		Timeout: cfg.OpenAI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	log.Info("Initialized upstream client",
		logger.StringField("model", completer.Model()),
		logger.StringField("api_url", cfg.OpenAI.APIBaseURL))

	relayService := relay.NewService(completer, relay.Config{
		SystemPrompt:    cfg.Relay.SystemPrompt,
		FallbackMessage: cfg.Relay.FallbackMessage,
	}, s.metrics, log)

	s.health = s.createHealthChecker()
	s.router = s.createRouter(handlers.NewChatHandler(relayService, log))

	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listening is closed once the HTTP listener is bound.
func (s *Server) Listening() <-chan struct{} {
	return s.listening
}

// Addr returns the bound listen address, or nil before Run has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:           s.cfg.HTTP.Addr(),
		Handler:        s.router,
		ReadTimeout:    s.cfg.HTTP.ReadTimeout(),
		WriteTimeout:   s.cfg.HTTP.WriteTimeout(),
		IdleTimeout:    s.cfg.HTTP.IdleTimeout(),
		MaxHeaderBytes: s.cfg.HTTP.MaxHeaderBytes,
	}

	addr, httpErrs, err := utils.Listen(httpServer, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
	close(s.listening)
	s.log.Info("Relay listening", logger.StringField("address", addr.String()))

	var metricsErrs <-chan error
	if s.cfg.Metrics.ExposeMetrics {
		metricsErrs, err = s.metrics.Listen(net.JoinHostPort(s.cfg.HTTP.Host, strconv.Itoa(s.cfg.Metrics.Port)))
		if err != nil {
			s.log.Error("Failed to start metrics listener", logger.ErrorField(err))
			_ = httpServer.Close()
			return err
		}
	}

	errs := utils.MergeErrorChans(httpErrs, metricsErrs)

	var result error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown requested")
	case err, ok := <-errs:
		if ok {
			s.log.Error("Listener failed, shutting down", logger.ErrorField(err))
			result = multierror.Append(result, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown error", logger.ErrorField(err))
		result = multierror.Append(result, err)
	}
	if err := s.metrics.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Metrics listener shutdown error", logger.ErrorField(err))
		result = multierror.Append(result, err)
	}

	for err := range errs {
		result = multierror.Append(result, err)
	}

	s.log.Info("Relay stopped")
	return result
}

func (s *Server) createRouter(chat *handlers.ChatHandler) chi.Router {
	router := chi.NewRouter()

	mwConfig := httpmiddleware.DefaultConfig()
	mwConfig.Logger = s.log
	mwConfig.EnableLogging = true
	securityOptions := httpmiddleware.DefaultSecurityOptions(s.cfg.IsDevelopment())
	mwConfig.Security = &securityOptions
	if s.cfg.StripPrefix != "" {
		mwConfig.StripPrefix = s.cfg.StripPrefix
		mwConfig.EnableStripPrefix = true
	}
	httpmiddleware.ApplyToRouter(router, mwConfig)
	router.Use(s.metrics.HTTPMiddleware())

	router.Post(ChatPath, chat.Chat)
	router.Get(livenessPath, s.health.LivenessHandler())
	router.Get(readinessPath, s.health.ReadinessHandler())

	return router
}

func (s *Server) createHealthChecker() *health.Checker {
	checker := health.New(
		health.WithLogger(s.log),
		health.WithTimeout(s.cfg.Health.Timeout),
		health.WithFailureThreshold(s.cfg.Health.FailureThreshold),
	)

	checker.AddLivenessCheck(health.NewCheckFunc("config", func(context.Context) error {
		if s.cfg.OpenAI.APIKey == "" {
			return errors.New("upstream API key not loaded")
		}
		return nil
	}))

	if s.cfg.Health.CheckUpstream {
		modelsURL := strings.TrimSuffix(s.cfg.OpenAI.APIBaseURL, "/") + "/models"
		checker.AddReadinessCheck(checkers.NewHTTPChecker(modelsURL, "openai"))
		s.log.Info("Upstream readiness check enabled", logger.StringField("url", modelsURL))
	}

	return checker
}
