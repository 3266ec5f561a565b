/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lease compliance engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start the periodic penalty scheduler
  6. Start server with graceful shutdown

CONFIGURATION:
  Flags, each with an environment-variable fallback:
    -port           PORT             HTTP server port (default: 8080)
    -db             DATABASE_PATH    SQLite path (default: lease.db,
                                     ":memory:" for in-memory)
    -tick           SCHEDULER_TICK   Scheduler tick interval (default: 15m)
    -light-amount   LIGHT_AMOUNT     Light penalty amount (default: 2000)
    -severe-amount  SEVERE_AMOUNT    Severe penalty amount (default: 5000)
    -tz             TIMEZONE         Operational timezone (default: Local)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler runner (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/lease.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on a different port with a faster tick
  ./server -port=3000 -tick=1m

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Periodic scheduler runner
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/lease-engine/api"
	"github.com/warp/lease-engine/lease"
	"github.com/warp/lease-engine/store/sqlite"
)

func main() {
	// .env is optional; flags and real env still win
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DATABASE_PATH", "lease.db"), "SQLite database path")
	tick := flag.Duration("tick", envDuration("SCHEDULER_TICK", 15*time.Minute), "scheduler tick interval")
	lightAmount := flag.String("light-amount", envString("LIGHT_AMOUNT", ""), "light penalty amount")
	severeAmount := flag.String("severe-amount", envString("SEVERE_AMOUNT", ""), "severe penalty amount")
	tz := flag.String("tz", envString("TIMEZONE", ""), "operational timezone (IANA name)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := lease.DefaultConfig()
	if *lightAmount != "" {
		amount, err := decimal.NewFromString(*lightAmount)
		if err != nil {
			log.Fatalf("Invalid light-amount: %v", err)
		}
		cfg.LightAmount = amount
	}
	if *severeAmount != "" {
		amount, err := decimal.NewFromString(*severeAmount)
		if err != nil {
			log.Fatalf("Invalid severe-amount: %v", err)
		}
		cfg.SevereAmount = amount
	}
	if *tz != "" {
		loc, err := time.LoadLocation(*tz)
		if err != nil {
			log.Fatalf("Invalid timezone: %v", err)
		}
		cfg.Location = loc
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, cfg, log)
	router := api.NewRouter(handler)

	// Periodic penalty scheduler
	runner := api.NewSchedulerRunner(handler.Scheduler, cfg, log)
	runner.TickInterval = *tick
	runner.Start()
	defer runner.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Server starting on http://localhost:%d", *port)
		log.Infof("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
