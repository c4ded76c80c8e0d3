package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/api"
	"github.com/Dahimi/File-Search-POC/internal/app"
	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/middleware/ratelimit"
	"github.com/Dahimi/File-Search-POC/internal/middleware/security"
	"github.com/Dahimi/File-Search-POC/pkg/config"
	appLogger "github.com/Dahimi/File-Search-POC/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Deal Room API Server")

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	dealRoom, err := app.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize deal room", zap.Error(err))
	}
	defer dealRoom.Close()

	srv := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	srv.Use(recover.New())
	srv.Use(logger.New())
	srv.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	srv.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	api.Register(srv, dealRoom.Service, api.Options{
		Limiter: ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Logger:               appLogger.GetLogger(),
		}),
		Metrics: cfg.Metrics.Enabled,
		Ready:   dealRoom.Ready,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := srv.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := srv.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
