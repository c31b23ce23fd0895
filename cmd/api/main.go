package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/config"
	"github.com/openfast-rag/openfast-rag-backend/internal/api/http/middleware"
	"github.com/openfast-rag/openfast-rag-backend/internal/auth"
	authmw "github.com/openfast-rag/openfast-rag-backend/internal/auth/middleware"
	"github.com/openfast-rag/openfast-rag-backend/internal/bootstrap"
	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	cronjob "github.com/openfast-rag/openfast-rag-backend/internal/rag/cron"
)

const serviceName = "openfast-rag-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[error] config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)
	logging.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatalf("[error] %v", err)
	}
}

// run serves until ctx is cancelled. Every resource it opens is released
// before it returns, including on startup errors.
func run(ctx context.Context, cfg *config.Config) error {
	svcs, err := bootstrap.NewServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svcs.Close()

	authMW, err := authMiddleware(ctx, cfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    serviceName,
		Version:        cfg.App.Version,
		StoreBackend:   cfg.Store.Backend,
		Store:          svcs.Store,
		Client:         svcs.Client,
		RAG:            svcs.RAG,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Auth:           authMW,
	})

	scheduler := cronjob.NewScheduler(cfg.VectorStore.ReconcileSchedule, svcs.Lifecycle)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer scheduler.Stop()

	// no WriteTimeout: streamed answers and indexed uploads outlive any fixed bound
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[info] %s %s listening on :%s (store=%s)", serviceName, cfg.App.Version, cfg.Server.Port, cfg.Store.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("[info] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

func authMiddleware(ctx context.Context, cfg *config.Config) (gin.HandlerFunc, error) {
	switch cfg.Auth.Mode {
	case "apikey":
		return middleware.APIKeyMiddleware(cfg.Auth.APIKey), nil
	case "firebase":
		client, err := auth.InitializeFirebase(ctx, &cfg.Auth)
		if err != nil {
			return nil, err
		}
		return authmw.FirebaseAuthMiddleware(client), nil
	default:
		return nil, nil
	}
}
