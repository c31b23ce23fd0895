package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/auth"
	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
)

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResp{
				OK:    false,
				Error: fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes),
			})
			return
		}
		badRequest(c, "missing multipart file field \"file\"")
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, "upload", err)
		return
	}
	defer f.Close()

	res, err := h.svc.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		writeError(c, "upload", err)
		return
	}

	logging.NewLogger(c.Request.Context()).LogInfof("upload", "%s indexed %s as %s (%d bytes)",
		auth.Caller(c), res.Filename, res.FileID, res.Bytes)
	c.JSON(http.StatusOK, uploadResp{OK: true, UploadResult: res})
}
