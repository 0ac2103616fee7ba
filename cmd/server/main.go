/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the CareLink billing server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env overlay (optional), parse command-line flags
  2. Initialize SQLite store
  3. Wire the accounting sync (webhook or disabled)
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: billing.db)
             Use ":memory:" for an in-memory database
  -sync-url  Accounting webhook URL; empty disables syncing

ENVIRONMENT:
  PORT, DB_PATH and SYNC_URL provide defaults for the flags, loaded from a
  .env file when one is present. Flags win over environment.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with accounting webhook
  ./server -sync-url="https://accounting.example.com/hooks/invoices"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carelink/ndis-billing/api"
	"github.com/carelink/ndis-billing/billing"
	"github.com/carelink/ndis-billing/store/sqlite"
	accsync "github.com/carelink/ndis-billing/sync"
)

func main() {
	// .env is optional; absence is not an error
	_ = godotenv.Load()

	// Flags, defaulted from environment
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DB_PATH", "billing.db"), "SQLite database path")
	syncURL := flag.String("sync-url", envString("SYNC_URL", ""), "accounting webhook URL (empty disables sync)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Accounting sync; nil disables the finalize handoff
	var sync billing.AccountingSync
	if *syncURL != "" {
		sync = accsync.NewWebhook(*syncURL)
		log.Printf("Accounting sync enabled: %s", *syncURL)
	}

	// Handler and router
	handler := api.NewHandler(store, sync)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Billing server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
