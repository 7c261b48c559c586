package main

import (
	"context"
	"fmt"
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
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/facelessreel/api/internal/client"
	"github.com/facelessreel/api/internal/config"
	"github.com/facelessreel/api/internal/handler"
	"github.com/facelessreel/api/internal/media"
	"github.com/facelessreel/api/internal/middleware"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/internal/service"
	"github.com/facelessreel/api/internal/storage"
	ws "github.com/facelessreel/api/internal/websocket"
	"github.com/facelessreel/api/internal/worker"
	"github.com/facelessreel/api/pkg/response"
)

const maintenanceQueue = "maintenance"

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
	defer redisClient.Close()

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	groqClient := client.NewGroqClient(&cfg.Groq)
	ttsClient := client.NewTTSClient(&cfg.TTS)
	imageClient := client.NewImageClient(&cfg.Images)

	store, r2Client, err := newVideoStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize video storage: %v", err)
	}

	// Initialize pipeline
	jobs := registry.New()
	scriptService := service.NewScriptService(groqClient, cfg.Pipeline.ScriptFallback)
	reelWorker := worker.NewReelWorker(jobs, storage.NewScratch(cfg.Storage.TempDir), worker.Stages{
		Script:   scriptService,
		Voice:    ttsClient,
		Images:   media.NewVisualRenderer(imageClient, cfg.Images.Width, cfg.Images.Height),
		Fallback: media.NewFallbackImager(cfg.Images.Width, cfg.Images.Height),
		Composer: media.NewComposer(&cfg.Composer, cfg.Images.Width, cfg.Images.Height),
	}, store, hub, &cfg.Pipeline)
	runner := worker.NewRunner(reelWorker, jobs, hub)

	// Initialize services
	reelService := service.NewReelService(jobs, runner, store, cfg.Pipeline.DefaultDuration, cfg.Pipeline.MaxDuration)

	// Initialize handlers
	reelHandler := handler.NewReelHandler(reelService, validate)
	healthHandler := handler.NewHealthHandler(map[string]func() bool{
		"groq":  groqClient.IsConfigured,
		"r2":    func() bool { return r2Client != nil && r2Client.IsConfigured() },
		"redis": func() bool { return pingRedis(redisClient) },
	}, reelService.Stats)

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())

	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.FrontendURL,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	// API routes
	api := app.Group("/api")
	api.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), reelHandler.Generate)
	api.Get("/status/:jobId", reelHandler.Status)
	api.Get("/download/:jobId", reelHandler.Download)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", reelHandler.RequireJob, reelHandler.Stream(hub))

	// Start scheduled purge of old videos
	var purge *purgeServer
	if cfg.Purge.Enabled {
		purge, err = startPurge(cfg, store)
		if err != nil {
			log.Fatalf("Failed to start purge scheduler: %v", err)
		}
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Printf("Pipeline shutdown error: %v", err)
	}
	hub.Stop()
	if purge != nil {
		purge.Shutdown()
	}
	log.Println("Server stopped")
}

// newVideoStore selects the final video storage driver
func newVideoStore(cfg *config.Config) (storage.VideoStore, *client.R2Client, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverR2:
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Storing videos in bucket %s under %s/", cfg.R2.BucketName, cfg.R2.Prefix)
		return storage.NewObjectVideoStore(r2Client, cfg.R2.Prefix), r2Client, nil
	default:
		store, err := storage.NewLocalVideoStore(cfg.Storage.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Storing videos in %s", cfg.Storage.OutputDir)
		return store, nil, nil
	}
}

func pingRedis(c *redis.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

type purgeServer struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
}

func (p *purgeServer) Shutdown() {
	p.scheduler.Shutdown()
	p.server.Shutdown()
}

// startPurge registers the periodic purge task and runs its worker
func startPurge(cfg *config.Config, store storage.VideoStore) (*purgeServer, error) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	task, err := service.NewPurgeTask(cfg.Purge.Retention)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{LogLevel: asynqLogLevel})
	if _, err := scheduler.Register(cfg.Purge.Schedule, task, asynq.Queue(maintenanceQueue), asynq.MaxRetry(2)); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", cfg.Purge.Schedule, err)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			maintenanceQueue: 1,
		},
		LogLevel: asynqLogLevel,
	})

	purgeWorker := worker.NewPurgeWorker(store)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePurge, purgeWorker.ProcessTask)

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := srv.Start(mux); err != nil {
		scheduler.Shutdown()
		return nil, fmt.Errorf("failed to start purge worker: %w", err)
	}

	log.Printf("Purging videos older than %s (%s)", cfg.Purge.Retention, cfg.Purge.Schedule)
	return &purgeServer{scheduler: scheduler, server: srv}, nil
}
