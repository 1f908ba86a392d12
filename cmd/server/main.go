package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marktwatch/server/config"
	"marktwatch/server/internal/api"
	"marktwatch/server/internal/database"
	"marktwatch/server/internal/matcher"
	"marktwatch/server/internal/notify"
	"marktwatch/server/internal/queue"
	"marktwatch/server/internal/reconciler"
	"marktwatch/server/internal/scheduler"
	"marktwatch/server/internal/source"
	"marktwatch/server/internal/valuation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.DatabasePath)

	store, err := database.NewStore(cfg.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	logger.Info("Running database migrations...")
	if err := store.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load product rules")
	}
	logger.WithField("products", len(rules.Rules)).Info("Loaded product rules")

	productMatcher := matcher.New(rules)
	window := time.Duration(cfg.Valuation.WindowDays) * 24 * time.Hour
	engine := valuation.NewEngine(productMatcher, window, logger)
	cache := valuation.NewCache()

	if cfg.Source.BaseURL == "" {
		logger.Fatal("SOURCE_BASE_URL is not configured")
	}
	src := source.NewHTTPSource(
		cfg.Source.BaseURL,
		cfg.Source.UserAgent,
		time.Duration(cfg.Source.TimeoutSeconds)*time.Second,
	)

	soldQueue := queue.NewSoldQueue(cfg.Reconciliation.SoldQueueSize, logger)
	telegramService := notify.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	if telegramService.Enabled() {
		soldQueue.Subscribe(telegramService.NotifySold)
		logger.Info("Telegram sold notifications enabled")
	}
	soldQueue.Start()
	defer soldQueue.Close()

	rec := reconciler.New(store, src, soldQueue, reconciler.Options{
		MaxPages:   cfg.Reconciliation.MaxPages,
		MaxRetries: cfg.Reconciliation.MaxRetries,
		RetryDelay: time.Duration(cfg.Reconciliation.RetryDelay) * time.Second,
	}, logger)

	sched := scheduler.New(rec, engine, store, cache, cfg.Searches, window, logger)
	sched.Start()
	defer sched.Stop()

	router := gin.Default()
	handler := api.NewHandler(store, engine, cache, rec, window, logger)
	api.SetupRoutes(router, handler)

	logger.Infof("Starting server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
