package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getStore(c *gin.Context) {
	info, err := h.svc.DescribeStore(c.Request.Context())
	if err != nil {
		writeError(c, "describe_store", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "store": info})
}

func (h *Handler) deleteStore(c *gin.Context) {
	id, err := h.svc.DeleteStore(c.Request.Context())
	if err != nil {
		writeError(c, "delete_store", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": true, "vector_store_id": id})
}

func (h *Handler) listStores(c *gin.Context) {
	stores, err := h.svc.ListStores(c.Request.Context())
	if err != nil {
		writeError(c, "list_stores", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "stores": stores})
}
