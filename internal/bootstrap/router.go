package bootstrap

import (
	"github.com/gin-gonic/gin"

	httpapi "github.com/openfast-rag/openfast-rag-backend/internal/api/http"
	"github.com/openfast-rag/openfast-rag-backend/internal/api/http/middleware"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	raghttp "github.com/openfast-rag/openfast-rag-backend/internal/rag/http"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/service"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	StoreBackend   string
	Store          httpapi.Pinger
	Client         *openai.Client
	RAG            *service.RAGService
	MaxUploadBytes int64
	CORSOrigins    []string
	// Auth guards every route except health checks; nil leaves them open.
	Auth gin.HandlerFunc
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(dep.CORSOrigins))

	var metrics func() openai.MetricsSnapshot
	if dep.Client != nil {
		metrics = dep.Client.Metrics
	}
	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.StoreBackend, dep.Store, metrics)
	healthHandler.RegisterRoutes(r)

	ragHandler := raghttp.New(dep.RAG, dep.MaxUploadBytes)

	root := r.Group("")
	api := r.Group("/api/v1")
	if dep.Auth != nil {
		root.Use(dep.Auth)
		api.Use(dep.Auth)
	}
	ragHandler.Register(root)
	ragHandler.Register(api)

	return r
}
