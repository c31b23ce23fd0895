package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Service   string                  `json:"service"`
	Version   string                  `json:"version"`
	Store     string                  `json:"store"`
	Backend   string                  `json:"store_backend,omitempty"`
	Upstream  *openai.MetricsSnapshot `json:"upstream,omitempty"`
}

type HealthHandler struct {
	serviceName string
	version     string
	backend     string
	store       Pinger
	metrics     func() openai.MetricsSnapshot
}

func NewHealthHandler(serviceName, version, backend string, store Pinger, metrics func() openai.MetricsSnapshot) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		backend:     backend,
		store:       store,
		metrics:     metrics,
	}
}

// HealthCheck reports "degraded" with 503 when the id store is unreachable.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status, code := "healthy", http.StatusOK

	storeStatus := "disabled"
	if h.store != nil {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := h.store.Ping(pingCtx); err != nil {
			storeStatus = "down"
			status, code = "degraded", http.StatusServiceUnavailable
		} else {
			storeStatus = "up"
		}
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		Store:     storeStatus,
		Backend:   h.backend,
	}
	if h.metrics != nil {
		m := h.metrics()
		resp.Upstream = &m
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
