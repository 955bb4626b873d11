package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/omnidesk/internal/actions"
	"github.com/xaenox/omnidesk/internal/classifier"
	"github.com/xaenox/omnidesk/internal/events"
	"github.com/xaenox/omnidesk/internal/routing"
	"github.com/xaenox/omnidesk/internal/server"
	"github.com/xaenox/omnidesk/internal/storage"
	"github.com/xaenox/omnidesk/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize invalidation publisher
	var invalidator events.Invalidator = events.Noop{}
	if cfg.Broker.Enabled {
		rabbit, err := events.NewRabbitInvalidator(cfg.Broker.URL, cfg.Broker.Exchange, logger)
		if err != nil {
			logger.Fatal("Failed to connect to broker", zap.Error(err))
		}
		invalidator = rabbit
	}
	defer invalidator.Close()

	// Initialize triage classifier
	var clf classifier.Classifier
	if cfg.Classifier.UseKeywords || cfg.OpenAI.APIKey == "" {
		logger.Info("Using keyword classifier")
		clf = classifier.NewKeywordClassifier()
	} else {
		clf = classifier.NewGPTClassifier(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			logger,
		)
	}

	// Wire the routing core
	statusEngine := routing.NewStatusEngine(store, invalidator, logger)
	resolver := routing.NewResolver(store)
	assignments := routing.NewAssignments(store, resolver, invalidator, logger)
	handoffs := routing.NewHandoffs(store, assignments, invalidator, logger)
	inbound := routing.NewInbound(store, statusEngine, handoffs, clf, cfg.Classifier.MinConfidence, logger)

	dispatcher := actions.NewDispatcher(logger)
	actions.RegisterCatalogue(dispatcher, statusEngine, assignments, invalidator)

	srv := server.New(cfg.Server.Address, store, statusEngine, assignments, resolver, handoffs, inbound, dispatcher, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
