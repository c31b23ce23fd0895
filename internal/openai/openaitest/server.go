// Package openaitest runs an in-memory stand-in for the hosted vector store
// API so packages above the client can be tested end to end.
package openaitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
)

// Operation names accepted by Fail and counted by Calls.
const (
	OpCreateStore     = "create_store"
	OpGetStore        = "get_store"
	OpListStores      = "list_stores"
	OpDeleteStore     = "delete_store"
	OpListStoreFiles  = "list_store_files"
	OpDeleteStoreFile = "delete_store_file"
	OpCreateBatch     = "create_batch"
	OpGetBatch        = "get_batch"
	OpUploadFile      = "upload_file"
	OpGetFile         = "get_file"
	OpDeleteFile      = "delete_file"
	OpCreateResponse  = "create_response"
)

type storeState struct {
	store   openai.VectorStore
	fileIDs []string
	files   map[string]*openai.VectorStoreFile
}

type batchState struct {
	batch openai.FileBatch
	polls int
}

// Server is a fake of the hosted API. Exported fields may be changed
// between requests; they are read under the server lock.
type Server struct {
	URL string

	srv *httptest.Server

	mu      sync.Mutex
	seq     int
	stores  map[string]*storeState
	order   []string
	files   map[string]*openai.File
	content map[string][]byte
	batches map[string]*batchState
	calls   map[string]int
	fail    map[string]int
	last    openai.ResponseRequest

	// Answer is returned as the output text of every response.
	Answer string
	// Citations are attached to the answer as file_citation annotations.
	Citations []openai.Citation
	// StreamDeltas splits Answer for streaming; empty streams Answer whole.
	StreamDeltas []string
	// StreamFailure, when set, ends a stream with an error event instead of
	// response.completed.
	StreamFailure string
	// ResponseError, when set, is returned as the error of a 200 response.
	ResponseError string
	// StreamDelay is slept before each streamed delta.
	StreamDelay time.Duration
	// BatchStatus is the terminal status of file batches.
	BatchStatus string
	// BatchPolls is how many retrievals a batch stays in_progress.
	BatchPolls int
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		stores:      map[string]*storeState{},
		files:       map[string]*openai.File{},
		content:     map[string][]byte{},
		batches:     map[string]*batchState{},
		calls:       map[string]int{},
		fail:        map[string]int{},
		Answer:      "The answer.",
		BatchStatus: openai.StatusCompleted,
	}
	s.srv = httptest.NewServer(s.router())
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// Client returns a hosted-API client pointed at the fake.
func (s *Server) Client(t testing.TB) *openai.Client {
	t.Helper()
	c, err := openai.New(openai.Config{APIKey: "test-key", BaseURL: s.URL})
	if err != nil {
		t.Fatalf("openaitest: new client: %v", err)
	}
	return c
}

// Fail makes every following call of op answer with status until cleared
// with status 0.
func (s *Server) Fail(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, op)
		return
	}
	s.fail[op] = status
}

// Calls reports how many times op was requested.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastResponseRequest returns the body of the most recent /responses call.
func (s *Server) LastResponseRequest() openai.ResponseRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// StoreIDs lists the ids of existing stores in creation order.
func (s *Server) StoreIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	out = append(out, s.order...)
	return out
}

// HasStore reports whether the store exists.
func (s *Server) HasStore(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stores[id]
	return ok
}

// StoreFileIDs lists files attached to a store.
func (s *Server) StoreFileIDs(vectorStoreID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[vectorStoreID]
	if !ok {
		return nil
	}
	return append([]string(nil), st.fileIDs...)
}

// HasFile reports whether a raw file exists.
func (s *Server) HasFile(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[id]
	return ok
}

// FileContent returns the uploaded bytes of a file.
func (s *Server) FileContent(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[id]
}

// AddStore creates a store directly, as another client would.
func (s *Server) AddStore(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createStoreLocked(name, nil).ID
}

// DeleteStoreOutOfBand removes a store without going through the API.
func (s *Server) DeleteStoreOutOfBand(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteStoreLocked(id)
}

// ExpireStore marks a store as expired.
func (s *Server) ExpireStore(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[id]; ok {
		st.store.Status = openai.StatusExpired
	}
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

func (s *Server) createStoreLocked(name string, expires *openai.ExpiresAfter) openai.VectorStore {
	now := time.Now().Unix()
	vs := openai.VectorStore{
		ID:           s.nextID("vs"),
		Object:       "vector_store",
		Name:         name,
		Status:       openai.StatusCompleted,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAfter: expires,
	}
	if expires != nil {
		vs.ExpiresAt = now + int64(expires.Days)*86400
	}
	s.stores[vs.ID] = &storeState{store: vs, files: map[string]*openai.VectorStoreFile{}}
	s.order = append(s.order, vs.ID)
	return vs
}

func (s *Server) deleteStoreLocked(id string) bool {
	if _, ok := s.stores[id]; !ok {
		return false
	}
	delete(s.stores, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (st *storeState) snapshot() openai.VectorStore {
	vs := st.store
	vs.FileCounts = openai.FileCounts{}
	vs.UsageBytes = 0
	for _, f := range st.files {
		vs.UsageBytes += f.UsageBytes
		vs.FileCounts.Total++
		switch f.Status {
		case openai.StatusCompleted:
			vs.FileCounts.Completed++
		case openai.StatusFailed:
			vs.FileCounts.Failed++
		case openai.StatusCancelled:
			vs.FileCounts.Cancelled++
		default:
			vs.FileCounts.InProgress++
		}
	}
	return vs
}

func notFound(c *gin.Context, what string) {
	apiError(c, http.StatusNotFound, fmt.Sprintf("No %s found", what))
}

func apiError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{
		"type":    "invalid_request_error",
		"message": msg,
	}})
}

// track counts the call and applies an injected failure. It must be called
// with the lock held and reports whether the handler should continue.
func (s *Server) track(c *gin.Context, op string) bool {
	s.calls[op]++
	if status, ok := s.fail[op]; ok {
		apiError(c, status, "injected failure for "+op)
		return false
	}
	return true
}

func (s *Server) router() http.Handler {
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer test-key" {
			apiError(c, http.StatusUnauthorized, "Incorrect API key provided")
			return
		}
		c.Next()
	})

	r.POST("/vector_stores", s.createStore)
	r.GET("/vector_stores", s.listStores)
	r.GET("/vector_stores/:id", s.getStore)
	r.DELETE("/vector_stores/:id", s.deleteStore)
	r.GET("/vector_stores/:id/files", s.listStoreFiles)
	r.DELETE("/vector_stores/:id/files/:file_id", s.deleteStoreFile)
	r.POST("/vector_stores/:id/file_batches", s.createBatch)
	r.GET("/vector_stores/:id/file_batches/:batch_id", s.getBatch)
	r.POST("/files", s.uploadFile)
	r.GET("/files/:id", s.getFile)
	r.DELETE("/files/:id", s.deleteFile)
	r.POST("/responses", s.createResponse)

	return r
}

func (s *Server) createStore(c *gin.Context) {
	var in openai.CreateVectorStoreRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpCreateStore) {
		return
	}
	c.JSON(http.StatusOK, s.createStoreLocked(in.Name, in.ExpiresAfter))
}

func (s *Server) listStores(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpListStores) {
		return
	}

	out := openai.VectorStoreList{Data: []openai.VectorStore{}}
	for _, id := range s.order {
		out.Data = append(out.Data, s.stores[id].snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getStore(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpGetStore) {
		return
	}

	st, ok := s.stores[c.Param("id")]
	if !ok {
		notFound(c, "vector store")
		return
	}
	c.JSON(http.StatusOK, st.snapshot())
}

func (s *Server) deleteStore(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpDeleteStore) {
		return
	}

	id := c.Param("id")
	if !s.deleteStoreLocked(id) {
		notFound(c, "vector store")
		return
	}
	c.JSON(http.StatusOK, openai.DeletionStatus{ID: id, Object: "vector_store.deleted", Deleted: true})
}

func (s *Server) listStoreFiles(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpListStoreFiles) {
		return
	}

	st, ok := s.stores[c.Param("id")]
	if !ok {
		notFound(c, "vector store")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	start := 0
	if after := c.Query("after"); after != "" {
		for i, id := range st.fileIDs {
			if id == after {
				start = i + 1
				break
			}
		}
	}

	out := openai.VectorStoreFileList{Data: []openai.VectorStoreFile{}}
	end := start + limit
	if end > len(st.fileIDs) {
		end = len(st.fileIDs)
	}
	for _, id := range st.fileIDs[start:end] {
		out.Data = append(out.Data, *st.files[id])
	}
	if len(out.Data) > 0 {
		out.FirstID = out.Data[0].ID
		out.LastID = out.Data[len(out.Data)-1].ID
	}
	out.HasMore = end < len(st.fileIDs)
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteStoreFile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpDeleteStoreFile) {
		return
	}

	st, ok := s.stores[c.Param("id")]
	if !ok {
		notFound(c, "vector store")
		return
	}
	fileID := c.Param("file_id")
	if _, ok := st.files[fileID]; !ok {
		notFound(c, "file")
		return
	}
	delete(st.files, fileID)
	for i, id := range st.fileIDs {
		if id == fileID {
			st.fileIDs = append(st.fileIDs[:i], st.fileIDs[i+1:]...)
			break
		}
	}
	c.JSON(http.StatusOK, openai.DeletionStatus{ID: fileID, Object: "vector_store.file.deleted", Deleted: true})
}

func (s *Server) createBatch(c *gin.Context) {
	var in struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpCreateBatch) {
		return
	}

	vsID := c.Param("id")
	st, ok := s.stores[vsID]
	if !ok {
		notFound(c, "vector store")
		return
	}

	b := &batchState{batch: openai.FileBatch{
		ID:            s.nextID("vsfb"),
		Object:        "vector_store.file_batch",
		CreatedAt:     time.Now().Unix(),
		VectorStoreID: vsID,
		Status:        openai.StatusInProgress,
	}}
	for _, id := range in.FileIDs {
		f, ok := s.files[id]
		if !ok {
			notFound(c, "file "+id)
			return
		}
		if _, attached := st.files[id]; !attached {
			st.fileIDs = append(st.fileIDs, id)
		}
		st.files[id] = &openai.VectorStoreFile{
			ID:            id,
			Object:        "vector_store.file",
			UsageBytes:    f.Bytes,
			CreatedAt:     time.Now().Unix(),
			VectorStoreID: vsID,
			Status:        openai.StatusInProgress,
		}
	}
	b.batch.FileCounts = openai.FileCounts{InProgress: len(in.FileIDs), Total: len(in.FileIDs)}
	s.batches[b.batch.ID] = b

	if s.BatchPolls <= 0 {
		s.finishBatchLocked(b, in.FileIDs)
	}
	c.JSON(http.StatusOK, b.batch)
}

func (s *Server) finishBatchLocked(b *batchState, fileIDs []string) {
	status := s.BatchStatus
	b.batch.Status = status
	n := b.batch.FileCounts.Total
	b.batch.FileCounts.InProgress = 0
	switch status {
	case openai.StatusFailed:
		b.batch.FileCounts.Failed = n
	case openai.StatusCancelled:
		b.batch.FileCounts.Cancelled = n
	default:
		b.batch.FileCounts.Completed = n
	}

	st, ok := s.stores[b.batch.VectorStoreID]
	if !ok {
		return
	}
	for _, id := range fileIDs {
		if f, ok := st.files[id]; ok {
			f.Status = status
			if status == openai.StatusFailed {
				f.LastError = &openai.LastError{Code: "server_error", Message: "indexing failed"}
			}
		}
	}
}

func (s *Server) getBatch(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpGetBatch) {
		return
	}

	b, ok := s.batches[c.Param("batch_id")]
	if !ok || b.batch.VectorStoreID != c.Param("id") {
		notFound(c, "file batch")
		return
	}
	if !b.batch.Done() {
		b.polls++
		if b.polls >= s.BatchPolls {
			var ids []string
			if st, ok := s.stores[b.batch.VectorStoreID]; ok {
				for id, f := range st.files {
					if f.Status == openai.StatusInProgress {
						ids = append(ids, id)
					}
				}
			}
			s.finishBatchLocked(b, ids)
		}
	}
	c.JSON(http.StatusOK, b.batch)
}

func (s *Server) uploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		apiError(c, http.StatusBadRequest, "missing file part")
		return
	}
	purpose := c.PostForm("purpose")
	if purpose == "" {
		apiError(c, http.StatusBadRequest, "missing purpose")
		return
	}
	f, err := fh.Open()
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpUploadFile) {
		return
	}

	file := &openai.File{
		ID:        s.nextID("file"),
		Object:    "file",
		Bytes:     int64(len(data)),
		CreatedAt: time.Now().Unix(),
		Filename:  fh.Filename,
		Purpose:   purpose,
	}
	s.files[file.ID] = file
	s.content[file.ID] = data
	c.JSON(http.StatusOK, file)
}

func (s *Server) getFile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpGetFile) {
		return
	}

	f, ok := s.files[c.Param("id")]
	if !ok {
		notFound(c, "file")
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) deleteFile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.track(c, OpDeleteFile) {
		return
	}

	id := c.Param("id")
	if _, ok := s.files[id]; !ok {
		notFound(c, "file")
		return
	}
	delete(s.files, id)
	delete(s.content, id)
	c.JSON(http.StatusOK, openai.DeletionStatus{ID: id, Object: "file", Deleted: true})
}

func (s *Server) createResponse(c *gin.Context) {
	var in openai.ResponseRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if !s.track(c, OpCreateResponse) {
		s.mu.Unlock()
		return
	}
	s.last = in
	for _, tool := range in.Tools {
		for _, id := range tool.VectorStoreIDs {
			if _, ok := s.stores[id]; !ok {
				s.mu.Unlock()
				apiError(c, http.StatusNotFound, fmt.Sprintf("Vector store with id '%s' not found.", id))
				return
			}
		}
	}
	resp := s.responseLocked(in.Model)
	deltas := append([]string(nil), s.StreamDeltas...)
	failure := s.StreamFailure
	delay := s.StreamDelay
	s.mu.Unlock()

	if !in.Stream {
		c.JSON(http.StatusOK, resp)
		return
	}

	if len(deltas) == 0 {
		deltas = []string{resp.OutputText()}
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	write := func(ev openai.StreamEvent) {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data)
		c.Writer.Flush()
	}

	inProgress := resp
	inProgress.Status = openai.StatusInProgress
	inProgress.Output = nil
	write(openai.StreamEvent{Type: "response.created", Response: &inProgress})
	fmt.Fprint(c.Writer, ": ping\n\n")
	for _, d := range deltas {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-c.Request.Context().Done():
				return
			}
		}
		write(openai.StreamEvent{Type: openai.EventOutputTextDelta, Delta: d})
	}
	if failure != "" {
		write(openai.StreamEvent{Type: openai.EventError, Code: "server_error", Message: failure})
		return
	}
	write(openai.StreamEvent{Type: openai.EventCompleted, Response: &resp})
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func (s *Server) responseLocked(model string) openai.Response {
	annotations := make([]openai.Annotation, 0, len(s.Citations))
	for i, cit := range s.Citations {
		annotations = append(annotations, openai.Annotation{
			Type:     "file_citation",
			Index:    i,
			FileID:   cit.FileID,
			Filename: cit.Filename,
		})
	}
	resp := openai.Response{
		ID:     s.nextID("resp"),
		Object: "response",
		Status: openai.StatusCompleted,
		Model:  model,
		Output: []openai.OutputItem{
			{ID: s.nextID("fs"), Type: "file_search_call", Status: openai.StatusCompleted},
			{
				ID:     s.nextID("msg"),
				Type:   "message",
				Role:   "assistant",
				Status: openai.StatusCompleted,
				Content: []openai.ContentPart{{
					Type:        "output_text",
					Text:        s.Answer,
					Annotations: annotations,
				}},
			},
		},
	}
	if s.ResponseError != "" {
		resp.Status = openai.StatusFailed
		resp.Output = nil
		resp.Error = &openai.ResponseError{Code: "server_error", Message: s.ResponseError}
	}
	return resp
}
