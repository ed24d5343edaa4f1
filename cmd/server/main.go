package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/layertune/api/internal/client"
	"github.com/layertune/api/internal/config"
	"github.com/layertune/api/internal/handler"
	"github.com/layertune/api/internal/middleware"
	"github.com/layertune/api/internal/project"
	"github.com/layertune/api/internal/service"
	ws "github.com/layertune/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection; fall back to in-memory state if unavailable
	ctx := context.Background()
	var repo project.Repository
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, projects will not survive restarts: %v", err)
		repo = project.NewMemoryRepository()
	} else {
		repo = project.NewRedisRepository(redisClient)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	sunoClient := client.NewSunoClient(&cfg.Suno)
	demucsClient := client.NewDemucsClient(&cfg.Demucs)

	// Demucs is the optional second separation provider
	var separator client.StemSeparator
	if demucsClient.IsConfigured() {
		separator = demucsClient
	} else {
		log.Println("Info: Demucs endpoint not configured, separation runs on a single provider")
	}

	// Initialize services
	studioService := service.NewStudioService(sunoClient, separator, repo, hub, cfg)

	// Initialize handlers
	studioHandler := handler.NewStudioHandler(studioService, validate)
	agentHandler := handler.NewAgentHandler(studioService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"suno":   sunoClient.IsConfigured(),
				"demucs": demucsClient.IsConfigured(),
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
				"auth":   cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Studio routes
	studio := api.Group("/studio")
	studio.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), studioHandler.Generate)
	studio.Get("/state", studioHandler.State)
	studio.Put("/lyrics", rateLimiter.LyricsLimit(cfg.RateLimit.LyricsPerMin), studioHandler.SetLyrics)

	layers := studio.Group("/layers", rateLimiter.LayerLimit(cfg.RateLimit.LayerPerHour))
	layers.Post("/", studioHandler.AddLayer)
	layers.Post("/:layerId/regenerate", studioHandler.Regenerate)
	layers.Post("/:layerId/keep-a", studioHandler.KeepA)
	layers.Post("/:layerId/keep-b", studioHandler.KeepB)
	layers.Post("/:layerId/versions/:index/switch", studioHandler.SwitchVersion)
	layers.Delete("/:layerId", studioHandler.RemoveLayer)

	// Chat-agent tool dispatch
	api.Post("/agent/tool", agentHandler.Tool)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/projects/:projectId", websocket.New(func(c *websocket.Conn) {
		projectID := c.Params("projectId")
		hub.HandleConnection(c, projectID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
