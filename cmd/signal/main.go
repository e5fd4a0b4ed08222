package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carebridge/internal/core/domain"
	"carebridge/internal/core/ports"
	"carebridge/internal/core/services"
	httphandlers "carebridge/internal/handlers/http"
	"carebridge/internal/infrastructure/events"
	"carebridge/internal/infrastructure/middleware"
	"carebridge/internal/infrastructure/monitoring"
	"carebridge/internal/infrastructure/repositories"
	signalserver "carebridge/internal/infrastructure/signal"
	webrtcinfra "carebridge/internal/infrastructure/webrtc"
	"carebridge/pkg/config"
	"carebridge/pkg/logger"
	"carebridge/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	startTime := time.Now()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer zapLogger.Sync()

	log := zapLogger.Sugar()
	if configPath != "" {
		log.Infow("Loaded config", "path", configPath)
	} else {
		log.Info("No config file found, using defaults and environment")
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "carebridge-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Storage
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	consultationRepo := repoFactory.CreateConsultationRepository()
	triageRepo := repoFactory.CreateTriageRepository()

	// Monitoring and lifecycle events
	var metrics ports.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	} else {
		publisher = events.NewLogPublisher(log)
	}

	// Core
	registry := services.NewSessionRegistry(metrics, log)
	queue := services.NewQueueManager(consultationRepo, registry, metrics, log)
	calls := services.NewCallCoordinator(registry, queue, log,
		services.WithConnectTimeout(cfg.Calls.ConnectTimeout),
		services.WithCoordinatorMetrics(metrics),
		services.WithEventPublisher(publisher),
	)
	relay := services.NewSignalingRelay(calls, metrics, log)
	signaling := services.NewSignalingService(registry, queue, calls, relay, log)
	consultationService := services.NewConsultationService(triageRepo, queue, calls, publisher, metrics, log)
	triageService := services.NewTriageService(triageRepo, log)

	iceConfig, err := webrtcinfra.NewICEConfig(cfg.WebRTC.ICEServers, cfg.WebRTC.ICETransportPolicy)
	if err != nil {
		log.Fatalw("invalid WebRTC configuration", "error", err)
	}

	// Realtime transport
	wsOptions := signalserver.Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		MaxMessageSize: cfg.Signal.MaxMessageSize,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		wsOptions.NewLimiter = func() *rate.Limiter { return middleware.NewMessageLimiter(cfg) }
	}

	var authService *services.AuthService
	authenticate := signalserver.QueryAuthenticator
	if cfg.Auth.Enabled {
		authService = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		authenticate = signalserver.TokenAuthenticator(authService)
		log.Info("Participant token authentication enabled")
	} else {
		log.Warn("Participant token authentication disabled; identities are taken from query parameters")
	}
	wsServer := signalserver.NewWebSocketServer(signaling, authenticate, wsOptions, log)

	// Readiness
	health := monitoring.NewHealthChecker()
	health.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	var providerAuth []gin.HandlerFunc
	if authService != nil {
		providerAuth = append(providerAuth, middleware.RequireRole(authService, domain.RoleProvider))
		httphandlers.NewAuthHandler(authService, consultationService).SetupRoutes(router)
	}
	httphandlers.NewConsultationHandler(consultationService).SetupRoutes(router, providerAuth...)
	httphandlers.NewTriageHandler(triageService).SetupRoutes(router)
	httphandlers.NewWebRTCHandler(iceConfig).SetupRoutes(router)

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		participants := registry.Counts()
		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"timestamp":    time.Now(),
			"uptime":       time.Since(startTime).String(),
			"connections":  wsServer.ConnectionCount(),
			"participants": participants,
			"active_calls": calls.ActiveCalls(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout would cut hijacked websocket connections; handlers are short.
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting CareBridge signaling server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down CareBridge signaling server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// End calls first so both parties get callEnded while their sockets are still open.
	calls.Shutdown(shutdownCtx)
	wsServer.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := publisher.Close(); err != nil {
		log.Errorw("Error closing event publisher", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	log.Info("CareBridge signaling server stopped")
}

// loadConfig loads the first config file found, or defaults plus
// environment when there is none.
func loadConfig() (*config.Config, string, error) {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/carebridge/config.yaml",
		"config.yaml",
	}
	if p := os.Getenv("CAREBRIDGE_CONFIG"); p != "" {
		configPaths = append([]string{p}, configPaths...)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, path, nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}
