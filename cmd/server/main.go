package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/unichat/unichat-backend/internal/cache"
	"github.com/unichat/unichat-backend/internal/handlers"
	"github.com/unichat/unichat-backend/internal/handlers/ws"
	"github.com/unichat/unichat-backend/internal/httpx"
	"github.com/unichat/unichat-backend/internal/live"
	"github.com/unichat/unichat-backend/internal/middleware"
	"github.com/unichat/unichat-backend/internal/service"
	"github.com/unichat/unichat-backend/internal/storage"
	"github.com/unichat/unichat-backend/internal/store"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "UniChat Backend",
		// Support attachment uploads up to 25MB + overhead.
		BodyLimit: 32 * 1024 * 1024, // 32MB
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Open the document store
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	db, err := store.Open(dataDir)
	if err != nil {
		log.Fatal("Failed to open document store:", err)
	}
	defer db.Close()

	// Initialize Redis cache
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsedDB, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsedDB
		}
	}

	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
	} else {
		log.Println("Redis cache connected successfully")
	}

	presenceCache := cache.NewPresenceCache(redisCache)
	chatListCache := cache.NewChatListCache(redisCache)

	// Initialize services
	tracker := live.NewTracker(db, presenceCache)
	authService := service.NewAuthService(db, tracker)
	conversationService := service.NewConversationService(db)
	messageService := service.NewMessageService(db)

	// Initialize S3/MinIO storage (best-effort; upload endpoints return 503 if missing)
	var attachmentStore *storage.AttachmentStorage
	if cfg, err := storage.LoadS3ConfigFromEnv(); err != nil {
		log.Printf("WARNING: S3 storage not configured: %v", err)
	} else if st, err := storage.NewAttachmentStorage(cfg); err != nil {
		log.Printf("WARNING: Failed to initialize S3 storage: %v", err)
	} else {
		attachmentStore = st
		log.Printf("S3 storage initialized successfully (bucket=%s)", cfg.Bucket)
	}

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(ws.SessionDeps{
		Store:     db,
		Users:     authService,
		Tracker:   tracker,
		ChatCache: chatListCache,
	})
	authHandler := handlers.NewAuthHandler(authService)
	conversationHandler := handlers.NewConversationHandler(conversationService, authService, tracker, chatListCache)
	messageHandler := handlers.NewMessageHandler(messageService, conversationService)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentStore, conversationService)

	// Public routes
	api := app.Group("/api")
	auth := api.Group("/auth", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/guest", authHandler.GuestLogin)

	// Protected routes
	protected := api.Group("/", middleware.AuthRequired())
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/users/me", authHandler.Me)
	protected.Get("/conversations", conversationHandler.List)
	protected.Post("/conversations/private", conversationHandler.StartPrivate)
	protected.Post("/conversations/group", conversationHandler.CreateGroup)
	protected.Post("/conversations/:id/read", conversationHandler.MarkRead)
	protected.Post("/conversations/:id/admins", conversationHandler.AddAdmin)
	protected.Get("/conversations/:id/messages", messageHandler.History)
	protected.Post(
		"/conversations/:id/attachments",
		limiter.New(limiter.Config{
			Max:        10,
			Expiration: 10 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if uid, err := httpx.LocalString(c, "userID"); err == nil {
					return "attach:" + uid
				}
				return c.IP()
			},
		}),
		requireStorage(attachmentStore),
		attachmentHandler.Upload,
	)
	protected.Post("/messages", messageHandler.Send)
	protected.Put("/messages/:id", messageHandler.Edit)
	protected.Delete("/messages/:id", messageHandler.Delete)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use("/ws", middleware.AuthRequired(), wsHandler.Upgrade)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "UniChat is running",
		})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Printf("Server starting on port %s...", port)
		if err := app.Listen(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Graceful shutdown: stop accepting requests, close ws connections
	// (firing mark-offline hooks), then the deferred db.Close runs.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	wsHandler.GetHub().Shutdown()
}

func requireStorage(st *storage.AttachmentStorage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if st == nil {
			return httpx.Error(c, fiber.StatusServiceUnavailable, "storage_unavailable", "Attachment storage is not configured")
		}
		return c.Next()
	}
}
