package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listFiles(c *gin.Context) {
	vsID, files, err := h.svc.ListFiles(c.Request.Context())
	if err != nil {
		writeError(c, "list_files", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "vector_store_id": vsID, "files": files})
}

func (h *Handler) deleteFile(c *gin.Context) {
	fileID := strings.TrimSpace(c.Param("id"))
	if err := h.svc.DeleteFile(c.Request.Context(), fileID); err != nil {
		writeError(c, "delete_file", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": true, "file_id": fileID})
}
