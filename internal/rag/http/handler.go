package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/rag/service"
)

// DefaultMaxUploadBytes applies when the handler is built with a zero limit.
const DefaultMaxUploadBytes = 32 << 20

// DefaultKeepAlive is the interval of SSE keep-alive comments.
const DefaultKeepAlive = 15 * time.Second

type Handler struct {
	svc            *service.RAGService
	maxUploadBytes int64
	keepAlive      time.Duration
}

func New(svc *service.RAGService, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes, keepAlive: DefaultKeepAlive}
}

// Register attaches the document and question routes to rg.
func (h *Handler) Register(rg gin.IRouter) {
	rg.POST("/upload", h.upload)
	rg.POST("/ask", h.ask)
	rg.POST("/ask/stream", h.askStream)
	rg.GET("/ask/stream", h.askStream)
	rg.GET("/files", h.listFiles)
	rg.DELETE("/files/:id", h.deleteFile)
	rg.GET("/store", h.getStore)
	rg.DELETE("/store", h.deleteStore)
	rg.GET("/stores", h.listStores)
}
