package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ask(c *gin.Context) {
	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	ans, err := h.svc.Ask(c.Request.Context(), req.Question)
	if err != nil {
		writeError(c, "ask", err)
		return
	}

	c.JSON(http.StatusOK, answerResp{OK: true, Answer: ans})
}
