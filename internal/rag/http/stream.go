package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
)

type streamItem struct {
	delta string
	err   error
}

// askStream relays a streamed answer as server-sent events: "delta" per text
// chunk, then one "done" or "error" event.
func (h *Handler) askStream(c *gin.Context) {
	var req askReq
	if c.Request.Method == http.MethodGet {
		req.Question = c.Query("question")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	ctx := c.Request.Context()
	stream, err := h.svc.AskStream(ctx, req.Question)
	if err != nil {
		writeError(c, "ask_stream", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		stream.Close()
		c.JSON(http.StatusInternalServerError, errorResp{OK: false, Error: "streaming unsupported"})
		return
	}

	items := make(chan streamItem)
	done := make(chan struct{})
	defer close(done)
	// the reader goroutine owns the stream from here on
	go func() {
		defer stream.Close()
		for {
			delta, err := stream.Next()
			select {
			case items <- streamItem{delta: delta, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	logger := logging.NewLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.LogInfof("ask_stream", "client disconnected")
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case it := <-items:
			if errors.Is(it.err, io.EOF) {
				ans := stream.Answer()
				writeEvent(c.Writer, "done", answerResp{OK: true, Answer: &ans})
				flusher.Flush()
				return
			}
			if it.err != nil {
				logger.LogError("ask_stream", it.err)
				writeEvent(c.Writer, "error", errorResp{OK: false, Error: it.err.Error()})
				flusher.Flush()
				return
			}
			writeEvent(c.Writer, "delta", deltaEvent{Text: it.delta})
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"ok":false,"error":"encode event"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
