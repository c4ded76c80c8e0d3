// Package app builds the deal room service from configuration. Both the HTTP
// server and the CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/cache/redis"
	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/provider/gemini"
	"github.com/Dahimi/File-Search-POC/internal/session"
	"github.com/Dahimi/File-Search-POC/internal/storage/sqlite"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/circuitbreaker"
	"github.com/Dahimi/File-Search-POC/pkg/config"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

var ErrMissingAPIKey = errors.New("provider API key is not set (GEMINI_API_KEY)")

type App struct {
	Service  *dealroom.Service
	Provider provider.Provider

	redis  *redis.Client
	sqlite *sqlite.Client
}

// New builds the service around a Gemini client.
func New(cfg *config.Config) (*App, error) {
	if cfg.Provider.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := gemini.NewClient(gemini.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIVersion: cfg.Provider.APIVersion,
		APIKey:     cfg.Provider.APIKey,
		Timeout:    time.Duration(cfg.Provider.TimeoutSec) * time.Second,
		Breaker: circuitbreaker.Config{
			MaxRequests:      1,
			Timeout:          time.Duration(cfg.Breaker.TimeoutSec) * time.Second,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				metrics.CircuitState.WithLabelValues(name).Set(float64(to))
			},
		},
	})
	metrics.CircuitState.WithLabelValues(client.Breaker().Name()).Set(float64(circuitbreaker.StateClosed))

	return NewWithProvider(cfg, client)
}

// NewWithProvider builds the service around p. The caller owns Close.
func NewWithProvider(cfg *config.Config, p provider.Provider) (*App, error) {
	a := &App{Provider: p}

	if cfg.SQLite.Enabled || cfg.Session.Backend == session.BackendSQLite {
		db, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite client: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.sqlite = db
	}

	var sessions session.Store
	switch cfg.Session.Backend {
	case session.BackendRedis:
		rc, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		a.redis = rc
		sessions = session.NewRedisStore(rc)
	case session.BackendSQLite:
		sessions = session.NewSQLiteStore(a.sqlite)
	default:
		sessions = session.NewMemoryStore()
	}

	systemPrompt, err := cfg.Chat.SystemPrompt()
	if err != nil {
		a.Close()
		return nil, err
	}

	var audit *sqlite.Client
	if cfg.SQLite.Enabled {
		audit = a.sqlite
	}

	a.Service = dealroom.NewService(
		stores.NewRegistry(p),
		ingestion.NewIngestor(p, ingestion.Config{
			TempDir:      cfg.Ingestion.TempDir,
			PollInterval: cfg.Ingestion.PollInterval,
			MaxWait:      cfg.Ingestion.MaxWait,
			MaxFileSize:  int64(cfg.Ingestion.MaxFileSize),
		}),
		chat.NewOrchestrator(p, chat.Config{
			Model:          cfg.Chat.Model,
			SystemPrompt:   systemPrompt,
			ThinkingBudget: cfg.Chat.ThinkingBudget,
		}),
		sessions,
		audit,
		dealroom.Config{
			HistoryLimit:  cfg.Chat.HistoryLimit,
			RetryAttempts: cfg.Chat.RetryAttempts,
		},
	)

	logger.Info("Deal room service ready",
		zap.String("model", a.Service.Model()),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("audit", audit != nil),
	)

	return a, nil
}

// Ready pings the storage backends in use.
func (a *App) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.sqlite != nil {
		if err := a.sqlite.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	return nil
}

// Close removes leftover temp files and closes the storage clients.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Cleanup()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			logger.Warn("Failed to close SQLite client", zap.Error(err))
		}
	}
}
