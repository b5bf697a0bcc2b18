// Package server is the composition root: it builds the store, optional
// cache, publisher and MQTT subscriber from config, wires them into the
// services and handlers, and owns the HTTP lifecycle.
//
// ROUTES:
//
//	GET  /healthz              liveness
//	GET  /readyz               store ping
//	GET  /metrics              Prometheus exposition
//	POST /garmin/webhook       event ingestion (rate limited per IP)
//	GET  /mcp/tools            tool catalog          (bearer auth)
//	POST /mcp/tools/call       tool invocation       (bearer auth)
//	GET  /mcp/sse              keep-alive stream     (bearer auth)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/garmin-mcp/internal/auth"
	"github.com/sakif/garmin-mcp/internal/cache"
	"github.com/sakif/garmin-mcp/internal/config"
	"github.com/sakif/garmin-mcp/internal/handler"
	"github.com/sakif/garmin-mcp/internal/middleware"
	"github.com/sakif/garmin-mcp/internal/mqttingest"
	"github.com/sakif/garmin-mcp/internal/publish"
	"github.com/sakif/garmin-mcp/internal/repository"
	"github.com/sakif/garmin-mcp/internal/repository/postgres"
	"github.com/sakif/garmin-mcp/internal/repository/sqlite"
	"github.com/sakif/garmin-mcp/internal/service"
)

// store is what both backends provide.
type store interface {
	repository.HealthRecordRepository
	repository.Pinger
	Close() error
}

var (
	_ store = (*sqlite.DB)(nil)
	_ store = (*postgres.Repository)(nil)
)

// Server holds the router and every resource it must release on shutdown.
type Server struct {
	router     *chi.Mux
	config     config.Config
	logger     *slog.Logger
	store      store
	redis      *cache.RedisKV
	publisher  publish.Publisher
	subscriber *mqttingest.Subscriber
}

// New opens the store and wires everything else. Redis, Kafka and MQTT
// clients connect lazily, so New only fails on store or auth errors.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		store:     st,
		publisher: publish.Noop{},
	}

	// === READ PATH ===
	var repo repository.HealthRecordRepository = st
	if cfg.Redis.Addr != "" {
		s.redis = cache.NewRedisKV(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		repo = cache.NewRepository(st, s.redis, cfg.Redis.TTL, logger)
		logger.Info("read-through cache enabled", slog.String("redis", cfg.Redis.Addr))
	}

	// === NOTIFICATIONS ===
	if len(cfg.Kafka.Brokers) > 0 {
		s.publisher = publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("upsert notifications enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	ingestService := service.NewIngestService(repo, s.publisher, logger)
	toolService := service.NewToolService(repo, logger)

	if cfg.MQTT.Broker != "" {
		s.subscriber = mqttingest.NewSubscriber(mqttingest.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      1,
		}, ingestService, logger)
	}

	authenticator, err := auth.NewAuthenticator(auth.Options{
		StaticToken: cfg.Auth.Token,
		TokenHash:   cfg.Auth.TokenHash,
		JWTSecret:   cfg.Auth.JWTSecret,
		Disabled:    cfg.Auth.Disabled,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("server: configuring auth: %w", err)
	}
	if !authenticator.Configured() {
		logger.Warn("no MCP credential configured; every /mcp request will be rejected")
	}
	if cfg.Auth.Disabled {
		logger.Warn("MCP authentication disabled")
	}

	s.setupRoutes(ingestService, toolService, authenticator)
	return s, nil
}

func openStore(cfg config.StoreConfig) (store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("server: opening postgres: %w", err)
		}
		return pg, nil
	default:
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("server: opening database: %w", err)
		}
		return db, nil
	}
}

func (s *Server) setupRoutes(ingest *service.IngestService, tools *service.ToolService, authenticator *auth.Authenticator) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)

	health := handler.NewHealthHandler(s.store, s.logger)
	s.router.Get("/healthz", health.HandleHealthz)
	s.router.Get("/readyz", health.HandleReadyz)
	s.router.Handle("/metrics", promhttp.Handler())

	webhook := handler.NewWebhookHandler(
		ingest,
		auth.NewSignatureVerifier(s.config.Auth.WebhookSecret),
		s.config.Server.MaxBodyBytes,
		s.logger,
	)
	limiter := middleware.NewRateLimiter(s.config.Server.RateLimit, s.config.Server.RateWindow)
	s.router.With(limiter.Handler).Post("/garmin/webhook", webhook.HandleWebhook)

	mcp := handler.NewMCPHandler(tools, s.config.Server.SSEPingInterval, s.logger)
	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(auth.RequireBearer(authenticator, s.logger))
		r.Get("/tools", mcp.HandleListTools)
		r.Post("/tools/call", mcp.HandleCall)
		r.Get("/sse", mcp.HandleSSE)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up to
// ShutdownTimeout and releases every resource.
func (s *Server) Start() error {
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The cache degrades to the store on Redis errors, so this only warns.
	if s.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.redis.Ping(pingCtx); err != nil {
			s.logger.Warn("redis unreachable; reads go to the store", slog.String("error", err.Error()))
		}
		cancel()
	}

	if s.subscriber != nil {
		if err := s.subscriber.Start(); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.Port))
	if err != nil {
		return fmt.Errorf("server: listening: %w", err)
	}
	s.logger.Info("server starting",
		slog.Int("port", s.config.Server.Port),
		slog.String("store", s.config.Store.Driver),
	)
	return s.serve(ctx, ln)
}

// serve handles requests on ln until ctx is done, then shuts down. Request
// contexts derive from a base context that shutdown cancels, so open
// /mcp/sse streams end instead of holding Shutdown until its deadline.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /mcp/sse streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases resources without serving. Used by tests.
func (s *Server) Close() {
	s.close()
}

func (s *Server) close() {
	if s.subscriber != nil {
		s.subscriber.Stop()
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("closing publisher", slog.String("error", err.Error()))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}
