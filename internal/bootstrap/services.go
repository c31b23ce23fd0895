package bootstrap

import (
	"context"
	"fmt"

	"github.com/openfast-rag/openfast-rag-backend/config"
	"github.com/openfast-rag/openfast-rag-backend/internal/archive"
	"github.com/openfast-rag/openfast-rag-backend/internal/idstore"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/service"
)

// Services is the object graph shared by the API server and the worker.
type Services struct {
	Store     idstore.Store
	Client    *openai.Client
	Lifecycle *service.Lifecycle
	RAG       *service.RAGService
}

func NewServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	store, err := idstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open id store: %w", err)
	}

	client, err := openai.New(openai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Organization:   cfg.OpenAI.Organization,
		Project:        cfg.OpenAI.Project,
		RequestsPerSec: cfg.OpenAI.RequestsPerSec,
		Burst:          cfg.OpenAI.Burst,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	lifecycle := service.NewLifecycle(client, store, service.LifecycleOptions{
		Name:             cfg.VectorStore.Name,
		ExpiresAfterDays: cfg.VectorStore.ExpiresAfterDays,
	})

	rag := service.NewRAGService(client, lifecycle, service.Options{
		Model:         cfg.OpenAI.Model,
		Instructions:  cfg.OpenAI.Instructions,
		MaxNumResults: cfg.OpenAI.MaxNumResults,
		UploadDir:     cfg.Upload.Dir,
		Poll: openai.PollOptions{
			Interval: cfg.VectorStore.PollInterval,
			Timeout:  cfg.VectorStore.IndexTimeout,
		},
	})

	archiver, err := archive.NewFromConfig(ctx, cfg.Archive)
	if err != nil {
		store.Close()
		return nil, err
	}
	if archiver != nil {
		rag.WithArchiver(archiver)
	}

	return &Services{Store: store, Client: client, Lifecycle: lifecycle, RAG: rag}, nil
}

func (s *Services) Close() error {
	return s.Store.Close()
}
