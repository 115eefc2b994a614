package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatcore-backend/internal/app"
	videoHandler "chatcore-backend/internal/handler/http/video"
	wsHandler "chatcore-backend/internal/handler/ws"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/notifier"
	signalingService "chatcore-backend/internal/service/signaling"
	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/env"
	"chatcore-backend/pkg/jwt"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/telemetry"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Server.Port = env.GetInt("PORT", 8083)
	cfg.Server.ServiceName = env.GetString("SERVICE_NAME", "video-service")

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Server.ServiceName, &cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// 2. Initialize Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 3. Call sessions and broker
	stores := app.OpenSignalingStores(ctx, cfg, appMetrics)
	defer stores.Close()

	// 4. Audit trail
	auditLogger, _ := app.NewAuditLogger(cfg, stores.Redis)
	defer auditLogger.Close()

	// 5. Initialize Services
	events := notifier.New(stores.Broker, nil, appMetrics)
	signalingSvc := signalingService.NewService(stores.Calls, events, auditLogger, appMetrics)

	// 6. Initialize Handlers
	videoHdlr := videoHandler.NewHandler(signalingSvc)

	// 7. Initialize WebRTC Signaling Hub
	signalingHub := wsHandler.NewSignalingHub(signalingSvc, events, appMetrics,
		cfg.Server.AllowedOrigins, env.GetInt("WS_MAX_CONNECTIONS", 1000))

	// 8. Setup Gin Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.Recovery())
	router.Use(otelgin.Middleware(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	var revocationChecker middleware.RevocationChecker
	if stores.Redis != nil {
		revocationChecker = middleware.NewRedisRevocationChecker(stores.Redis)
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.AccessTokenExpiry)
	rateLimiter := middleware.NewRateLimiter(stores.Redis, middleware.RateLimiterConfig{
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
		Burst:    cfg.RateLimit.Burst,
	}, appMetrics)

	// Video routes (all require authentication)
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		// WebSocket endpoint for WebRTC signaling
		v1.GET("/ws/signaling", signalingHub.ServeWS)

		calls := v1.Group("/calls")
		calls.Use(rateLimiter.Middleware())
		calls.Use(middleware.TimeoutMiddleware(cfg.Server.RequestTimeout))
		{
			calls.POST("", videoHdlr.StartCall)
			calls.GET("/:id", videoHdlr.GetCall)
			calls.PUT("/:id/signal", videoHdlr.PublishSignal)
			calls.GET("/:id/signal", videoHdlr.ReadSignal)
			calls.DELETE("/:id", videoHdlr.EndCall)
		}
	}

	// 9. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Video Service starting on port %d (storage: %s)\n", cfg.Server.Port, stores.Backend)
		log.Println("📡 WebRTC Signaling: /v1/ws/signaling")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
