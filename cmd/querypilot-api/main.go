package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/analyzer"
	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/archive"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/classifier"
	"github.com/querypilot/querypilot/internal/config"
	historypostgres "github.com/querypilot/querypilot/internal/conversation/postgres"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/metasync"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/orchestrator"
	duckdbengine "github.com/querypilot/querypilot/internal/query/duckdb"
	"github.com/querypilot/querypilot/internal/sqlgen"
	s3store "github.com/querypilot/querypilot/internal/storage/s3"
	"github.com/querypilot/querypilot/internal/tablesource/infoschema"
)

func main() {
	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	historyDB, err := historypostgres.Open(context.Background(), historypostgres.DBConfig{
		DSN:             cfg.History.DSN,
		MaxOpenConns:    cfg.History.MaxOpenConns,
		MaxIdleConns:    cfg.History.MaxIdleConns,
		ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.History.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open history db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = historyDB.Close() }()
	historyStore := historypostgres.NewStore(historyDB)

	engine, err := duckdbengine.Open(cfg.Warehouse.Path, cfg.Warehouse.QueryTimeout)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	llmClient, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	cache := metasync.NewCache(metasync.Config{
		Dataset:          cfg.Warehouse.Dataset,
		TTL:              cfg.Cache.TTL,
		KeepSnapshots:    cfg.Cache.KeepSnapshots,
		SampleTableRows:  cfg.Cache.SampleTableRows,
		MaxFewShots:      cfg.Cache.MaxFewShots,
		AbstractExamples: cfg.Cache.AbstractExamples,
	}, infoschema.NewSource(engine.DB()), llmClient, objectStore, logger)

	assistant := &orchestrator.Service{
		Classifier: classifier.New(llmClient),
		Generator: sqlgen.New(sqlgen.Config{
			FallbackTable: cfg.Warehouse.FallbackTable,
			MaxResultRows: cfg.Warehouse.MaxResultRows,
		}, llmClient),
		Analyzer: analyzer.New(llmClient),
		Metadata: cache,
		Engine:   engine,
		History:  historyStore,
		Archiver: &archive.Archiver{Store: objectStore, Logger: logger},
		Config: orchestrator.Config{
			MaxContextBlocks: cfg.Conversation.MaxContextBlocks,
			MaxResultRows:    cfg.Warehouse.MaxResultRows,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:  logger,
		History: historyStore,
		Cache:   cache,
		Readiness: api.CombineReadinessChecks(
			historyStore.HealthCheck,
			api.CheckWarehousePath(cfg),
			api.CheckObjectStoreConfig(cfg),
		),
		Assistant:         assistant,
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresher := &metasync.Service{
		Cache:           cache,
		RefreshInterval: cfg.Cache.RefreshInterval,
		Logger:          logger,
	}
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("metadata refresher failed", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
