package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rkervin/rollcall/internal/database"
	"github.com/rkervin/rollcall/internal/logging"
	"github.com/rkervin/rollcall/internal/registry"
	"github.com/rkervin/rollcall/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("ROLLCALL_LOG_LEVEL"))

	port := os.Getenv("ROLLCALL_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("ROLLCALL_DB_PATH")
	if dbPath == "" {
		dbPath = "rollcall.db"
	}

	registryPath := os.Getenv("ROLLCALL_REGISTRY_PATH")
	if registryPath == "" {
		registryPath = "rollcall-sessions"
	}

	secret := os.Getenv("ROLLCALL_IDENTITY_SECRET")
	if secret == "" {
		logger.Error("ROLLCALL_IDENTITY_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reg, err := registry.Open(registryPath)
	if err != nil {
		logger.Error("failed to open session registry", "path", registryPath, "error", err)
		os.Exit(1)
	}
	defer reg.Close()

	srv := server.New(db, reg, server.Config{IdentitySecret: []byte(secret)}, logger)

	// Pick up sessions that were open when the process last stopped.
	resumed, err := srv.Manager().Resume()
	if err != nil {
		logger.Error("failed to resume sessions", "error", err)
		os.Exit(1)
	}
	if resumed > 0 {
		logger.Info("resumed attendance sessions", "count", resumed)
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Rollcall running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Stop session loops without clearing the registry so open sessions
	// resume on the next start.
	srv.Manager().Shutdown()
}
