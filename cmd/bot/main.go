package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	pixchat "github.com/set-night/pixchat"
	"github.com/set-night/pixchat/internal/chat"
	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/genapi"
	"github.com/set-night/pixchat/internal/handler"
	"github.com/set-night/pixchat/internal/imagecache"
	"github.com/set-night/pixchat/internal/middleware"
	"github.com/set-night/pixchat/internal/repository"
	"github.com/set-night/pixchat/internal/service"
	"github.com/set-night/pixchat/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogging(cfg)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Generation API client
	api := genapi.NewClient(genapi.Options{
		BaseURL:          cfg.APIBaseURL,
		APIKey:           cfg.APIKey,
		CreditsURL:       cfg.CreditsURL,
		Timeout:          config.RequestTimeout,
		MaxDownloadBytes: config.MaxImageDownloadBytes,
	})

	// Image cache
	images, err := imagecache.New(cfg.CacheDir, cfg.CacheEntries, api)
	if err != nil {
		slog.Error("failed to open image cache", "error", err)
		os.Exit(1)
	}

	// History storage
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open history storage", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer closeStore()

	// Initialize services
	historyService := service.NewHistoryService(store, images)
	creditsService := service.NewCreditsService(api, cfg.CreditsURL != "", config.CreditsCacheDuration)
	contentService := service.NewContentService(api, cfg.ManifestURL)

	registry := chat.NewRegistry(historyService)
	engine := chat.NewEngine(chat.EngineDeps{
		Generator:  api,
		Images:     images,
		History:    historyService,
		Credits:    creditsService,
		Styles:     contentService,
		Model:      cfg.Model,
		Streaming:  cfg.Streaming,
		MaxHistory: config.MaxHistoryMessages,
	})

	limiter := middleware.NewChatLimiter(config.RateLimitPerMinute, config.RateLimitBurst)

	// Handler and ops logger pointers for use in closures built before the bot
	var h *handler.Handler
	var tgLogger *telegram.TelegramLogger

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(func(err error, where string) {
				tgLogger.LogError(err, where)
			}),
			middleware.Logging(),
			middleware.RateLimit(limiter),
			middleware.ConversationLoader(registry),
		),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if h == nil || update.Message == nil {
				return
			}
			// Prompts: plain text, photos and image documents
			h.HandleMessage(ctx, b, update)
		}),
		bot.WithErrorsHandler(func(err error) {
			slog.Error("telegram bot error", "error", err)
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}

	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	if cfg.DropPendingUpdates {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			slog.Warn("failed to drop pending updates", "error", err)
		}
	}

	// Initialize telegram logger
	tgLogger = telegram.NewTelegramLogger(b, cfg)

	// Initialize handler
	h = handler.New(handler.Deps{
		Bot:            b,
		Cfg:            cfg,
		Engine:         engine,
		Registry:       registry,
		HistoryService: historyService,
		CreditsService: creditsService,
		ContentService: contentService,
		Images:         images,
		TgLogger:       tgLogger,
	})

	// Register all handlers
	h.Register()

	// Evict idle conversations and rate limit buckets
	go func() {
		ticker := time.NewTicker(config.ConversationSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := registry.Sweep(config.ConversationIdleTTL)
				dropped := limiter.Sweep(config.ConversationIdleTTL)
				if evicted > 0 || dropped > 0 {
					slog.Debug("idle state swept", "conversations", evicted, "limiters", dropped)
				}
			}
		}
	}()

	// Start bot
	slog.Info("starting bot",
		"username", me.Username,
		"id", me.ID,
		"storage", cfg.StorageBackend,
		"streaming", cfg.Streaming,
	)
	b.Start(ctx)

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}

func setupLogging(cfg *config.Config) {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore opens the configured history backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (service.HistoryStore, func(), error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		migrationsFS, err := fs.Sub(pixchat.MigrationsFS, "migrations")
		if err != nil {
			return nil, nil, fmt.Errorf("load embedded migrations: %w", err)
		}
		store, err := repository.OpenPostgres(ctx, repository.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, migrationsFS)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres history: %w", err)
		}
		return store, store.Close, nil

	default:
		store, err := repository.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
