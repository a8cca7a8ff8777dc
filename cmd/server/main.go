package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blagoySimandov/certmapper/internal/api"
	"github.com/blagoySimandov/certmapper/internal/auth"
	"github.com/blagoySimandov/certmapper/internal/blob"
	"github.com/blagoySimandov/certmapper/internal/config"
	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/mapper"
	"github.com/blagoySimandov/certmapper/internal/pipeline"
	"github.com/blagoySimandov/certmapper/internal/services"
	"github.com/blagoySimandov/certmapper/internal/state"
)

func main() {
	cfg := config.Load()
	if cfg.Debug {
		logger.SetLevel("debug")
	}
	ctx := context.Background()

	store, err := state.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer store.Close()

	blobs, err := blob.New(ctx, cfg.StorageURI)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}
	defer blobs.Close()

	backend, definition, err := services.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create agent backend: %v", err)
	}

	tracker, err := services.NewUsageTracker(services.WithUsageStore(store))
	if err != nil {
		log.Fatalf("Failed to create usage tracker: %v", err)
	}
	agentClient, err := services.NewAgentClient(backend, services.NewAgentHandleProvider(backend, definition), services.WithUsageTracker(tracker))
	if err != nil {
		log.Fatalf("Failed to create agent client: %v", err)
	}

	driver := pipeline.NewDriver(agentClient, pipeline.WithRowTimeout(cfg.RowTimeout))
	stateManager := state.NewStateManager(store)
	jobMapper := mapper.NewJobMapper(driver, stateManager, blobs, cfg.MaxWorkers)

	var jwtVerifier *auth.JWTVerifier
	if cfg.JWKSURL != "" {
		jwtVerifier, err = auth.NewJWTVerifier(cfg.JWKSURL)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer jwtVerifier.Close()
	} else {
		logger.Log.Warn("JWKS_URL not set, authentication disabled")
	}

	handler := api.NewMappingHandler(jobMapper)
	router := api.SetupRoutes(handler, jwtVerifier, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Log.Error("server shutdown error", "error", err)
		}
	}()

	logger.Log.Info("server starting", "addr", cfg.ServerAddr, "backend", cfg.AgentBackend, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := jobMapper.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("job shutdown error", "error", err)
	}
	logger.Log.Info("server stopped", "usage", tracker.Snapshot())
}
