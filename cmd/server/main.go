package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookshelf-ai/server/internal/api"
	"github.com/bookshelf-ai/server/internal/config"
	"github.com/bookshelf-ai/server/internal/core"
	"github.com/bookshelf-ai/server/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	logger := newLogger(config.AppConfig.LogLevel)
	defer logger.Sync()

	// Initialize the workbook store
	wbStore, err := store.NewWorkbookStore(config.AppConfig.WorkbookPath, logger)
	if err != nil {
		logger.Fatal("Failed to open workbook", zap.Error(err))
	}

	// Initialize the LLM client
	llmClient, err := core.NewLLMClient(context.Background(), config.AppConfig.GeminiAPIKey, config.AppConfig.LLMTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	defer llmClient.Close()

	// Initialize the recommendation pipeline
	recommender := core.NewRecommender(wbStore, llmClient.Complete, config.AppConfig.HistoryLimit, logger)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(
		wbStore,
		recommender,
		config.AppConfig.AuthLogin,
		config.AppConfig.AuthPassword,
		config.AppConfig.SyncCacheTTL,
		logger,
	)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second, // two sequential LLM calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting gracefully")
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "DEBUG" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}
