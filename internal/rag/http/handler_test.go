package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfast-rag/openfast-rag-backend/internal/api/http/middleware"
	"github.com/openfast-rag/openfast-rag-backend/internal/idstore"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai/openaitest"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/service"
)

type testEnv struct {
	router  *gin.Engine
	handler *Handler
	fake    *openaitest.Server
	svc     *service.RAGService
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := openaitest.New(t)
	client := fake.Client(t)
	lc := service.NewLifecycle(client, idstore.NewMemoryStore(), service.LifecycleOptions{Name: "test-store"})
	svc := service.NewRAGService(client, lc, service.Options{
		UploadDir: t.TempDir(),
		Poll:      openai.PollOptions{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second},
	})

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	h := New(svc, maxUpload)
	h.Register(r)
	h.Register(r.Group("/api/v1"))

	return &testEnv{router: r, handler: h, fake: fake, svc: svc}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) jsonRequest(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return e.do(req)
}

func (e *testEnv) upload(t *testing.T, path, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.upload(t, "/upload", "file", "guide.md", []byte("# guide"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "File processed and indexed", body["message"])
	assert.NotEmpty(t, body["vector_store_id"])
	assert.NotEmpty(t, body["file_id"])
	assert.NotEmpty(t, body["batch_id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "guide.md", body["filename"])
	counts := body["file_counts"].(map[string]any)
	assert.Equal(t, float64(1), counts["completed"])
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.upload(t, "/upload", "document", "guide.md", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])

	w = env.jsonRequest(http.MethodPost, "/upload", `{"file":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, 512)

	w := env.upload(t, "/upload", "file", "big.txt", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, env.fake.Calls(openaitest.OpUploadFile))
}

func TestUpload_IndexingFailed(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.BatchStatus = openai.StatusFailed

	w := env.upload(t, "/upload", "file", "bad.pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, decode(t, w)["error"], "file indexing failed")
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.Answer = "Forty-two."
	env.fake.Citations = []openai.Citation{{FileID: "file_1", Filename: "guide.md"}}

	w := env.jsonRequest(http.MethodPost, "/ask", `{"question":"What is the answer?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Forty-two.", body["answer"])
	assert.NotEmpty(t, body["vector_store_id"])
	cits := body["citations"].([]any)
	require.Len(t, cits, 1)
	assert.Equal(t, "file_1", cits[0].(map[string]any)["file_id"])
}

func TestAsk_BadRequests(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, body := range []string{`{"question":"   "}`, `{}`, `not json`} {
		w := env.jsonRequest(http.MethodPost, "/ask", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, false, decode(t, w)["ok"], body)
	}
	assert.Equal(t, 0, env.fake.Calls(openaitest.OpCreateResponse))
}

func TestAsk_UpstreamError(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.Fail(openaitest.OpCreateResponse, http.StatusInternalServerError)

	w := env.jsonRequest(http.MethodPost, "/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAskStream_POST(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.Answer = "Hi there"
	env.fake.StreamDeltas = []string{"Hi", " there"}

	w := env.jsonRequest(http.MethodPost, "/ask/stream", `{"question":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(w.Body.String())
	require.Len(t, events, 3, w.Body.String())
	assert.Equal(t, "delta", events[0].name)
	assert.JSONEq(t, `{"text":"Hi"}`, events[0].data)
	assert.JSONEq(t, `{"text":" there"}`, events[1].data)

	assert.Equal(t, "done", events[2].name)
	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &done))
	assert.Equal(t, true, done["ok"])
	assert.Equal(t, "Hi there", done["answer"])
	assert.NotEmpty(t, done["vector_store_id"])
	assert.NotNil(t, done["citations"])
}

func TestAskStream_KeepAlive(t *testing.T) {
	env := newTestEnv(t, 0)
	env.handler.keepAlive = 5 * time.Millisecond
	env.fake.Answer = "slow answer"
	env.fake.StreamDeltas = []string{"slow", " answer"}
	env.fake.StreamDelay = 60 * time.Millisecond

	w := env.jsonRequest(http.MethodPost, "/ask/stream", `{"question":"take your time"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	keepAlive := strings.Index(body, ": keep-alive\n\n")
	done := strings.Index(body, "event: done")
	require.GreaterOrEqual(t, keepAlive, 0, body)
	require.GreaterOrEqual(t, done, 0, body)
	assert.Less(t, keepAlive, done)

	events := parseSSE(body)
	require.Len(t, events, 3, body)
	assert.Equal(t, "done", events[2].name)
}

func TestNew_DefaultKeepAlive(t *testing.T) {
	assert.Equal(t, DefaultKeepAlive, New(nil, 0).keepAlive)
	assert.Equal(t, int64(DefaultMaxUploadBytes), New(nil, 0).maxUploadBytes)
}

func TestAskStream_GET(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.Answer = "ok"

	w := env.jsonRequest(http.MethodGet, "/api/v1/ask/stream?question=hello", "")
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].name)
}

func TestAskStream_EmptyQuestion(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.jsonRequest(http.MethodGet, "/ask/stream", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])
}

func TestAskStream_ErrorEvent(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.StreamDeltas = []string{"partial"}
	env.fake.StreamFailure = "rate limited"

	w := env.jsonRequest(http.MethodPost, "/ask/stream", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSE(w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "delta", events[0].name)
	assert.Equal(t, "error", events[1].name)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &payload))
	assert.Equal(t, false, payload["ok"])
	assert.Contains(t, payload["error"], "rate limited")
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.jsonRequest(http.MethodGet, "/files", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	up := decode(t, env.upload(t, "/upload", "file", "a.txt", []byte("a")))
	fileID := up["file_id"].(string)

	w = env.jsonRequest(http.MethodGet, "/files", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, up["vector_store_id"], body["vector_store_id"])
	files := body["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, fileID, files[0].(map[string]any)["id"])
	assert.Equal(t, "a.txt", files[0].(map[string]any)["filename"])

	w = env.jsonRequest(http.MethodDelete, "/files/"+fileID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["deleted"])

	w = env.jsonRequest(http.MethodDelete, "/files/"+fileID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStoreRoutes(t *testing.T) {
	env := newTestEnv(t, 0)

	assert.Equal(t, http.StatusNotFound, env.jsonRequest(http.MethodGet, "/store", "").Code)
	assert.Equal(t, http.StatusNotFound, env.jsonRequest(http.MethodDelete, "/store", "").Code)

	up := decode(t, env.upload(t, "/upload", "file", "a.txt", []byte("a")))
	vsID := up["vector_store_id"].(string)
	env.fake.AddStore("unrelated")

	w := env.jsonRequest(http.MethodGet, "/store", "")
	require.Equal(t, http.StatusOK, w.Code)
	store := decode(t, w)["store"].(map[string]any)
	assert.Equal(t, vsID, store["id"])
	assert.Equal(t, "test-store", store["name"])

	w = env.jsonRequest(http.MethodGet, "/stores", "")
	require.Equal(t, http.StatusOK, w.Code)
	stores := decode(t, w)["stores"].([]any)
	require.Len(t, stores, 2)
	owned := 0
	for _, s := range stores {
		if s.(map[string]any)["owned"] == true {
			owned++
			assert.Equal(t, vsID, s.(map[string]any)["id"])
		}
	}
	assert.Equal(t, 1, owned)

	w = env.jsonRequest(http.MethodDelete, "/store", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, vsID, decode(t, w)["vector_store_id"])
	assert.False(t, env.fake.HasStore(vsID))

	assert.Equal(t, http.StatusNotFound, env.jsonRequest(http.MethodGet, "/store", "").Code)
}

func TestRequestIDPropagates(t *testing.T) {
	env := newTestEnv(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "rid-42")
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rid-42", w.Header().Get("X-Request-Id"))
}

func TestAsk_FailedResponseIsBadGateway(t *testing.T) {
	env := newTestEnv(t, 0)
	env.fake.ResponseError = "model crashed"

	w := env.jsonRequest(http.MethodPost, "/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["error"], "model crashed")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("create response: %w", domain.ErrUpstreamFailed)))
	assert.Equal(t, http.StatusBadGateway, statusFor(&openai.APIError{StatusCode: 429}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(&http.MaxBytesError{Limit: 1}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
