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

	"chatcore-backend/internal/middleware"
	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/env"
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
	cfg.Server.Port = env.GetInt("PORT", 8080)
	cfg.Server.ServiceName = env.GetString("SERVICE_NAME", "api-gateway")

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := telemetry.Init(context.Background(), cfg.Server.ServiceName, &cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	// 2. Upstreams
	chat, err := newUpstream("chat-service", env.GetString("CHAT_SERVICE_URL", "http://localhost:8082"))
	if err != nil {
		log.Fatal(err)
	}
	video, err := newUpstream("video-service", env.GetString("VIDEO_SERVICE_URL", "http://localhost:8083"))
	if err != nil {
		log.Fatal(err)
	}
	gw := &gateway{chat: chat, video: video}

	// 3. Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	router := gin.New()

	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.Recovery())
	router.Use(otelgin.Middleware(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Authentication, CORS and rate limiting stay with the services
	router.NoRoute(gw.handle)

	// 4. Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("🚀 API Gateway starting on port %d\n", cfg.Server.Port)
		log.Println("📍 Routes:")
		log.Println("   - Calls: /v1/calls/*, /v1/ws/signaling -> video-service")
		log.Println("   - Everything else under /v1 -> chat-service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start API Gateway: %v", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Gateway forced to shutdown: %v", err)
	}
	log.Println("Gateway exited")
}
