package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatcore-backend/internal/app"
	"chatcore-backend/internal/domain"
	adminHandler "chatcore-backend/internal/handler/http/admin"
	chatHandler "chatcore-backend/internal/handler/http/chat"
	conversationHandler "chatcore-backend/internal/handler/http/conversation"
	groupHandler "chatcore-backend/internal/handler/http/group"
	pushHandler "chatcore-backend/internal/handler/http/push"
	userHandler "chatcore-backend/internal/handler/http/user"
	wsHandler "chatcore-backend/internal/handler/ws"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/moderation"
	"chatcore-backend/internal/notifier"
	chatService "chatcore-backend/internal/service/chat"
	directoryService "chatcore-backend/internal/service/directory"
	membershipService "chatcore-backend/internal/service/membership"
	storageService "chatcore-backend/internal/service/storage"
	userService "chatcore-backend/internal/service/user"
	"chatcore-backend/internal/visibility"
	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	"chatcore-backend/pkg/env"
	"chatcore-backend/pkg/jwt"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
	"chatcore-backend/pkg/push"
	"chatcore-backend/pkg/telemetry"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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

	// 3. Open the storage backend
	stores, err := app.OpenStores(ctx, cfg, appMetrics)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer stores.Close()

	// 4. Audit trail
	auditLogger, auditEvents := app.NewAuditLogger(cfg, stores.Redis)
	defer auditLogger.Close()

	// 5. Moderation gate, hot-reloaded from the blocklist file when one is set
	gate := moderation.NewGate(cfg.Moderation.Blocklist)
	if cfg.Moderation.BlocklistFile != "" {
		watcher := moderation.NewWatcher(gate, cfg.Moderation.BlocklistFile, cfg.Moderation.ReloadInterval, auditLogger)
		go watcher.Run(ctx)
		log.Printf("✅ Watching blocklist file %s", cfg.Moderation.BlocklistFile)
	}
	log.Printf("✅ Moderation gate ready (%d words)", len(gate.Words()))

	// 6. Attachment store
	blobStore, memoryBlobs := openBlobStore(ctx, cfg, appMetrics)

	// 7. Push provider
	pushProvider, err := push.NewProvider(ctx, &cfg.Push)
	if err != nil {
		log.Fatalf("Failed to initialize push provider: %v", err)
	}
	pushSvc := push.NewService(pushProvider, stores.Tokens, appMetrics)

	// 8. Initialize Services
	stream := notifier.New(stores.Broker, stores.Messages, appMetrics)
	membershipSvc := membershipService.NewService(stores.Groups, stream, auditLogger, appMetrics)
	directorySvc := directoryService.NewService(stores.Directs, auditLogger, appMetrics)
	userSvc := userService.NewService(stores.Users, auditLogger, appMetrics)
	chatSvc := chatService.NewService(chatService.Dependencies{
		Messages:    stores.Messages,
		Gate:        gate,
		Groups:      membershipSvc,
		Directs:     directorySvc,
		Visibility:  visibility.NewEngine(stores.Messages, stream, appMetrics),
		Stream:      stream,
		Attachments: storageService.NewService(blobStore, cfg.MinIO.MaxUpload),
		Presence:    stores.Presence,
		Pusher:      pushSvc,
		Audit:       auditLogger,
		Metrics:     appMetrics,
	})

	// 9. Initialize Handlers
	chatHdlr := chatHandler.NewHandler(chatSvc)
	groupHdlr := groupHandler.NewHandler(membershipSvc)
	conversationHdlr := conversationHandler.NewHandler(directorySvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	userHdlr := userHandler.NewHandler(userSvc)
	var auditReader adminHandler.AuditReader
	if auditEvents != nil {
		auditReader = auditEvents
	}
	adminHdlr := adminHandler.NewHandler(gate, auditLogger, auditReader)

	// 10. Initialize WebSocket Hub
	chatHub := wsHandler.NewChatHub(chatSvc, stores.Presence, appMetrics,
		cfg.Server.AllowedOrigins, env.GetInt("WS_MAX_CONNECTIONS", 1000))

	// 11. Setup Gin Router
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

	if memoryBlobs != nil {
		router.GET("/files/*key", func(c *gin.Context) {
			data, ok := memoryBlobs.Object(strings.TrimPrefix(c.Param("key"), "/"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.Data(http.StatusOK, http.DetectContentType(data), data)
		})
	}

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

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		// WebSocket endpoint (real-time chat), outside the request timeout
		v1.GET("/ws/chat", chatHub.ServeWS)

		api := v1.Group("")
		api.Use(rateLimiter.Middleware())
		api.Use(middleware.TimeoutMiddleware(cfg.Server.RequestTimeout))

		conversations := api.Group("/conversations")
		{
			conversations.POST("/direct", conversationHdlr.ResolveDirect)
			conversations.GET("/direct/:peer", conversationHdlr.ResolveDirectWith)
			conversations.GET("", conversationHdlr.ListConversations)
			conversations.GET("/:id", conversationHdlr.GetConversation)
		}
		registerMessageRoutes(conversations, chatHdlr, domain.KindDirect)

		groups := api.Group("/groups")
		{
			groups.POST("", groupHdlr.CreateGroup)
			groups.GET("", groupHdlr.ListMyGroups)
			groups.GET("/public", groupHdlr.ListPublicGroups)
			groups.GET("/:id", groupHdlr.GetGroup)
			groups.POST("/:id/join", groupHdlr.JoinGroup)
			groups.POST("/:id/members", groupHdlr.AddMember)
			groups.DELETE("/:id/members/:user_id", groupHdlr.RemoveMember)
			groups.POST("/:id/admins", groupHdlr.PromoteAdmin)
			groups.DELETE("/:id/admins/:user_id", groupHdlr.DemoteAdmin)
		}
		registerMessageRoutes(groups, chatHdlr, domain.KindGroup)

		users := api.Group("/users")
		{
			users.GET("", userHdlr.ListUsers)
			users.GET("/me", userHdlr.GetMe)
			users.POST("/me/tagged/:user_id", userHdlr.TagFriend)
			users.DELETE("/me/tagged/:user_id", userHdlr.UntagFriend)
		}

		pushTokens := api.Group("/push/tokens")
		{
			pushTokens.POST("", pushHdlr.RegisterToken)
			pushTokens.DELETE("", pushHdlr.UnregisterToken)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.GET("/moderation/blocklist", adminHdlr.GetBlocklist)
			admin.PUT("/moderation/blocklist", adminHdlr.UpdateBlocklist)
			admin.GET("/audit", adminHdlr.GetAuditEvents)
		}
	}

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Chat Service starting on port %d (storage: %s)\n", cfg.Server.Port, stores.Backend)
		log.Println("📡 WebSocket endpoint: /v1/ws/chat")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 13. Graceful shutdown
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

// registerMessageRoutes mounts the message endpoints of one conversation kind
func registerMessageRoutes(rg *gin.RouterGroup, h *chatHandler.Handler, kind domain.ConversationKind) {
	messages := rg.Group("/:id", chatHandler.Kind(kind))
	{
		messages.POST("/messages", h.SendMessage)
		messages.GET("/messages", h.GetMessages)
		messages.POST("/messages/:message_id/viewed", h.MarkViewed)
		messages.POST("/attachments", h.SendAttachment)
		messages.POST("/attachments/presign", h.RequestUpload)
		messages.POST("/attachments/complete", h.CompleteUpload)
	}
}

// openBlobStore uses MinIO in cluster mode and process memory otherwise. The
// memory store is returned separately so its objects can be served.
func openBlobStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (storageService.BlobStore, *storageService.MemoryStore) {
	if cfg.Storage.Backend == config.BackendCluster {
		store, err := storageService.NewMinioStore(ctx, &cfg.MinIO, m.GetRegistry())
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		log.Println("✅ Connected to MinIO")
		return store, nil
	}

	baseURL := env.GetString("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)) + "/files"
	store := storageService.NewMemoryStore(baseURL)
	log.Printf("⚠️  Attachments kept in memory, served under %s", baseURL)
	return store, store
}
