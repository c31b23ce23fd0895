package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *openai.APIError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrEmptyFilename),
		errors.Is(err, domain.ErrEmptyFileID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoVectorStore),
		errors.Is(err, domain.ErrFileNotFound):
		return http.StatusNotFound
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrIndexingFailed),
		errors.Is(err, domain.ErrUpstreamFailed),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	logger := logging.NewLogger(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.LogError(operation, err)
	} else {
		logger.LogWarnf(operation, "status=%d error=%v", status, err)
	}
	c.JSON(status, errorResp{OK: false, Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResp{OK: false, Error: msg})
}
