package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arcanum/internal/config"
	"arcanum/internal/crypto"
	"arcanum/internal/engines"
	"arcanum/internal/handlers"
	"arcanum/internal/jobs"
	"arcanum/internal/logging"
	"arcanum/internal/middleware"
	"arcanum/internal/services"
	"arcanum/internal/store"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Arcanum cache server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Env: %s)", cfg.Port, cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Select the store backend: Redis when configured, in-memory otherwise.
	var (
		backend store.Store
		pinger  handlers.Pinger
	)
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		backend = redisStore
		pinger = redisStore
		log.Println("✅ Redis store connected")
	} else {
		backend = store.NewMemoryStore()
		log.Println("⚠️  REDIS_URL not set, using in-memory store (data is not durable)")
	}

	// Optional payload encryption for the profile store.
	var encryption *crypto.EncryptionService
	if cfg.EncryptionMasterKey != "" {
		var err error
		encryption, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize encryption: %v", err)
		}
		log.Println("✅ Profile encryption enabled")
	}

	// Engine complexity tiers, with optional hot-reloaded overrides.
	tiers := engines.NewTiers()
	if cfg.EngineTiersFile != "" {
		if err := tiers.LoadFile(cfg.EngineTiersFile); err != nil {
			log.Printf("⚠️  Failed to load engine tiers file: %v", err)
		} else if err := tiers.Watch(ctx); err != nil {
			log.Printf("⚠️  Failed to watch engine tiers file: %v", err)
		}
	}

	registry := engines.NewRegistry()
	if cfg.DemoEngines {
		engines.RegisterDemo(registry)
		log.Printf("✅ Demo engines registered: %v", registry.Names())
	}

	// Services
	metrics := services.InitMetrics()
	cacheStats := services.NewCacheStatsService(backend, cfg.StatsEnabled)
	resultCache := services.NewResultCacheService(
		backend, cacheStats, tiers, registry, metrics,
		cfg.ConfidenceThreshold, cfg.CacheParanoid, cfg.WarmRatePerSecond,
	)
	profiles := services.NewProfileService(backend, encryption, services.ProfileConfig{
		QuickAccessEngines: cfg.QuickAccessEngines,
		QuickAccessTTL:     cfg.QuickAccessTTL,
		TTLHigh:            cfg.ProfileTTLHigh,
		TTLNormal:          cfg.ProfileTTLNormal,
		TTLLow:             cfg.ProfileTTLLow,
	})
	timeline := services.NewTimelineService(backend, cfg.TimelineStatsCap, metrics)
	maintenance := services.NewMaintenanceService(backend, resultCache, timeline, metrics, cfg.TimelineStatsCacheTTL)

	// Scheduled maintenance jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	if len(cfg.WarmEngines) > 0 {
		warmJob := jobs.NewCacheWarmJob(backend, maintenance, cfg.WarmEngines)
		scheduler.RegisterCron("cache-warm", cfg.WarmSchedule, warmJob.Run)
	}
	repairJob := jobs.NewIndexRepairJob(backend, timeline)
	scheduler.RegisterCron("index-repair", cfg.RepairSchedule, repairJob.Run)
	scheduler.Start()
	defer scheduler.Stop()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "arcanum",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestID())
	if cfg.Environment != "production" {
		app.Use(logger.New())
	}

	prometheus := fiberprometheus.New("arcanum")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Handlers
	healthHandler := handlers.NewHealthHandler(pinger)
	cacheHandler := handlers.NewCacheHandler(resultCache, cacheStats, cfg.CacheBaseTTL)
	profileHandler := handlers.NewProfileHandler(profiles)
	timelineHandler := handlers.NewTimelineHandler(timeline, maintenance)
	maintenanceHandler := handlers.NewMaintenanceHandler(maintenance)

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api/v1")

	api.Get("/cache/stats", cacheHandler.Stats)
	api.Post("/cache/:engine/lookup", cacheHandler.Lookup)
	api.Post("/cache/:engine/warm", cacheHandler.Warm)
	api.Post("/cache/:engine", cacheHandler.Set)
	api.Delete("/cache/:engine", cacheHandler.Invalidate)

	api.Put("/users/:userId/profiles/:engine", profileHandler.Write)
	api.Get("/users/:userId/profiles/:engine", profileHandler.Read)
	api.Get("/users/:userId/profiles", profileHandler.ListVersions)
	api.Delete("/users/:userId/profiles", profileHandler.DeleteAll)

	api.Post("/users/:userId/timeline/index/rebuild", timelineHandler.RebuildIndex)
	api.Post("/users/:userId/timeline/warm", maintenanceHandler.WarmUserTimeline)
	api.Get("/users/:userId/timeline/stats", timelineHandler.Stats)
	api.Post("/users/:userId/timeline", timelineHandler.Append)
	api.Get("/users/:userId/timeline", timelineHandler.Query)
	api.Put("/users/:userId/timeline/:entryId", timelineHandler.Update)
	api.Delete("/users/:userId/timeline/:entryId", timelineHandler.Remove)

	api.Delete("/users/:userId/cache", maintenanceHandler.InvalidateUserCache)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("👋 Server stopped")
}
