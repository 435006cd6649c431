package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/SBRGA/internal/config"
	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/logging"
	"github.com/copyleftdev/SBRGA/internal/metrics"
	"github.com/copyleftdev/SBRGA/internal/server"
	"github.com/copyleftdev/SBRGA/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: "sbrga-painting-server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Create a service logger with additional fields
	serviceLogger := logger.WithField("version", "1.0.0")
	zapLogger := logging.NewZapLogger(serviceLogger)
	defer zapLogger.Sync()

	// Run store
	st := store.NewSQLiteStore(cfg.Database.DSN)
	if err := st.Init(ctx); err != nil {
		serviceLogger.Fatal("Failed to open run store", map[string]interface{}{
			"dsn":   cfg.Database.DSN,
			"error": err.Error(),
		})
	}
	defer st.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(registry)
	if err != nil {
		serviceLogger.Fatal("Failed to register metrics", map[string]interface{}{"error": err.Error()})
	}

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(serviceLogger)) // Our custom logging middleware
	r.Use(perrors.RecoveryMiddleware(serviceLogger))
	r.Use(perrors.ErrorHandler(serviceLogger))

	// Add health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if logger := logging.FromContext(r.Context()); logger != nil {
			logger.Debug("Health check")
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Add metrics endpoint
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Create server instance with our logger
	srv := server.NewServer(cfg, serviceLogger, st,
		server.WithMetrics(collector),
		server.WithZapLogger(zapLogger),
	)

	// Request timeouts apply to the API only; runs continue in the background.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		srv.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start HTTP server
	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address":    httpServer.Addr,
			"output_dir": cfg.Output.Dir,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	// Running paintings are cancelled; each still saves its best-so-far.
	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("server exited properly")
}
