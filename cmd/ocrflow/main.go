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

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/adapter/pdf"
	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/policy"
	"github.com/xiaot623/ocrflow/internal/progress"
	"github.com/xiaot623/ocrflow/internal/repository"
	"github.com/xiaot623/ocrflow/internal/service"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
	handler "github.com/xiaot623/ocrflow/internal/transport/http"
	"github.com/xiaot623/ocrflow/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting ocrflow...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Log directory: %s (console level: %s)", cfg.LogDir, cfg.LogLevel)
	log.Printf("MaiAgent URL: %s", cfg.Provider.BaseURL)
	if cfg.Mode != "" {
		log.Printf("Mode: %s", cfg.Mode)
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		log.Printf("WARN: missing configuration %v, OCR requests will fail", missing)
	}

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize session log sink
	logs := sessionlog.NewSink(cfg.LogDir, os.Stdout)
	defer logs.Close()
	if err := logs.SetConsoleLevel(cfg.LogLevel); err != nil {
		log.Printf("WARN: %v, mirroring all levels", err)
	}

	// Initialize provider
	provider := maiagent.NewProvider(cfg.Mode, cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.RequestTimeout)

	// Initialize policy engine
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize progress hub
	hub := progress.NewHub()
	go hub.Run(ctx)

	// Initialize service
	svc := service.New(cfg, provider, db, policyEngine, logs,
		service.WithPDFInspector(pdf.NewInspector(cfg.Upload.MaxPDFPages)),
		service.WithPublisher(hub),
	)
	go svc.RunStaleRunSweeper(ctx, time.Minute)

	// Create Echo server
	server := handler.NewServer(cfg, svc, ws.NewServer(cfg.WS, hub))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down ocrflow...")
	stop()

	// In-flight workflows may take up to the workflow budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timing.WorkflowBudget+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("ocrflow stopped")
}
