package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"curaai.dev/cura/internal/api"
	"curaai.dev/cura/internal/config"
	"curaai.dev/cura/internal/core"
	"curaai.dev/cura/internal/logging"
	"curaai.dev/cura/internal/store"
)

func main() {
	// Load configuration; a missing model credential is fatal.
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	cfg := config.AppConfig

	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the session store. Failure here is not fatal: the server runs
	// degraded and persistence calls fail until the store comes back.
	dbStore := openStore(ctx, cfg.DatabaseURL, logger)
	defer dbStore.Close()

	// Initialize the model client
	generator, err := core.NewGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize model client", zap.Error(err))
	}
	defer generator.Close()

	chatService := core.NewChatService(dbStore, generator, logger,
		core.WithTemperature(cfg.LLMTemperature),
		core.WithHistoryWindow(cfg.HistoryWindow),
	)

	apiHandler := api.NewAPIHandler(chatService, dbStore, logger)
	router := api.NewRouter(apiHandler, logger, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second, // large image uploads
		// No write timeout: a chat turn waits on the model for as long as it takes.
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", serverAddr), zap.String("provider", cfg.LLMProvider), zap.String("model", cfg.LLMModel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		// Give active connections time to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exiting gracefully")
}

func openStore(ctx context.Context, databaseURL string, logger *zap.Logger) store.Store {
	st, err := store.Open(ctx, databaseURL)
	if err != nil {
		logger.Warn("Store unavailable, running without persistence", zap.Error(err))
		return store.Unavailable(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		logger.Warn("Store not reachable, persistence calls will fail until it recovers", zap.Error(err))
	} else {
		logger.Info("Connected to store")
	}
	return st
}
