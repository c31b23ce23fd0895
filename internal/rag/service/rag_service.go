package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

const (
	DefaultModel     = "gpt-4o"
	uploadMessage    = "File processed and indexed"
	listStoresLimit  = 100
	listFilesPerPage = 100
)

// Archiver keeps a copy of every uploaded document outside the vector store.
type Archiver interface {
	Archive(ctx context.Context, key string, r io.Reader, size int64) (string, error)
}

type Options struct {
	Model         string
	Instructions  string
	MaxNumResults int
	UploadDir     string
	Poll          openai.PollOptions
}

// RAGService uploads documents into the managed vector store and answers
// questions against it.
type RAGService struct {
	client    *openai.Client
	lifecycle *Lifecycle
	archiver  Archiver
	opts      Options
}

func NewRAGService(client *openai.Client, lifecycle *Lifecycle, opts Options) *RAGService {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "data"
	}
	return &RAGService{client: client, lifecycle: lifecycle, opts: opts}
}

// WithArchiver enables archiving of uploads. A nil archiver disables it.
func (s *RAGService) WithArchiver(a Archiver) *RAGService {
	s.archiver = a
	return s
}

func (s *RAGService) Lifecycle() *Lifecycle { return s.lifecycle }

// Upload spools r to disk, uploads it, attaches it to the vector store and
// waits for indexing to finish.
func (s *RAGService) Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadResult, error) {
	logger := logging.NewLogger(ctx)

	name := SanitizeFilename(filename)
	if name == "" {
		return nil, domain.ErrEmptyFilename
	}

	spool, size, err := s.spool(name, r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(spool); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.LogWarnf("upload", "failed to remove spool file %s: %v", spool, err)
		}
	}()

	vsID, err := s.lifecycle.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.UploadResult{
		Message:       uploadMessage,
		VectorStoreID: vsID,
		Filename:      name,
		Bytes:         size,
	}

	if s.archiver != nil {
		key, err := s.archive(ctx, spool, name, size)
		if err != nil {
			logger.LogWarnf("upload", "archive of %s failed: %v", name, err)
		} else {
			result.ArchiveKey = key
		}
	}

	f, err := os.Open(spool)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	file, err := s.client.UploadFile(ctx, name, f, openai.PurposeAssistants)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	result.FileID = file.ID

	batch, err := s.client.UploadAndPoll(ctx, vsID, []string{file.ID}, s.opts.Poll)
	if err != nil {
		if openai.IsNotFound(err) {
			_ = s.lifecycle.Forget(ctx, vsID)
		}
		if batch == nil {
			// never attached, so nothing references the raw file
			s.discardFile(ctx, file.ID)
		}
		return nil, fmt.Errorf("index file: %w", err)
	}

	result.BatchID = batch.ID
	result.Status = batch.Status
	result.FileCounts = fileCounts(batch.FileCounts)

	if batch.Status == openai.StatusFailed || batch.Status == openai.StatusCancelled || batch.FileCounts.Failed > 0 {
		logger.LogWarnf("upload", "batch_id=%s status=%s failed=%d", batch.ID, batch.Status, batch.FileCounts.Failed)
		return nil, fmt.Errorf("%w: batch %s ended %s", domain.ErrIndexingFailed, batch.ID, batch.Status)
	}

	logger.LogInfof("upload", "indexed file_id=%s filename=%s bytes=%d vector_store_id=%s", file.ID, name, size, vsID)
	return result, nil
}

func (s *RAGService) spool(name string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.opts.UploadDir, uuid.NewString()+"-"+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write spool file: %w", err)
	}
	return path, n, nil
}

func (s *RAGService) archive(ctx context.Context, spool, name string, size int64) (string, error) {
	f, err := os.Open(spool)
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := time.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString() + "-" + name
	return s.archiver.Archive(ctx, key, f, size)
}

func (s *RAGService) discardFile(ctx context.Context, fileID string) {
	if _, err := s.client.DeleteFile(ctx, fileID); err != nil && !openai.IsNotFound(err) {
		logging.NewLogger(ctx).LogWarnf("upload", "failed to delete unattached file_id=%s: %v", fileID, err)
	}
}

func (s *RAGService) request(question, vsID string) openai.ResponseRequest {
	return openai.ResponseRequest{
		Model:        s.opts.Model,
		Input:        question,
		Instructions: s.opts.Instructions,
		Tools:        []openai.Tool{openai.FileSearchTool(vsID, s.opts.MaxNumResults)},
	}
}

// Ask answers question from the documents in the vector store.
func (s *RAGService) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	vsID, err := s.lifecycle.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateResponse(ctx, s.request(question, vsID))
	if err != nil {
		if openai.IsNotFound(err) {
			_ = s.lifecycle.Forget(ctx, vsID)
		}
		return nil, fmt.Errorf("create response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("create response: %w: %s", domain.ErrUpstreamFailed, resp.Error.Message)
	}

	return &domain.Answer{
		Answer:        resp.OutputText(),
		VectorStoreID: vsID,
		Citations:     citations(resp.Citations()),
	}, nil
}

// AskStream starts a streamed answer. The caller must Close the stream.
func (s *RAGService) AskStream(ctx context.Context, question string) (*AnswerStream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	vsID, err := s.lifecycle.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := s.client.CreateResponseStream(ctx, s.request(question, vsID))
	if err != nil {
		if openai.IsNotFound(err) {
			_ = s.lifecycle.Forget(ctx, vsID)
		}
		return nil, fmt.Errorf("create response stream: %w", err)
	}
	return &AnswerStream{stream: stream, vectorStoreID: vsID}, nil
}

// ListFiles returns every file attached to the current vector store.
func (s *RAGService) ListFiles(ctx context.Context) (string, []domain.StoredFile, error) {
	vsID, err := s.lifecycle.Current(ctx)
	if err != nil {
		return "", nil, err
	}

	out := []domain.StoredFile{}
	params := openai.ListParams{Limit: listFilesPerPage}
	for {
		page, err := s.client.ListVectorStoreFiles(ctx, vsID, params)
		if err != nil {
			if openai.IsNotFound(err) {
				if ferr := s.lifecycle.Forget(ctx, vsID); ferr != nil {
					return "", nil, ferr
				}
				return "", nil, domain.ErrNoVectorStore
			}
			return "", nil, fmt.Errorf("list vector store files: %w", err)
		}
		for _, f := range page.Data {
			out = append(out, s.storedFile(ctx, f))
		}
		if !page.HasMore || page.LastID == "" {
			break
		}
		params.After = page.LastID
	}
	return vsID, out, nil
}

func (s *RAGService) storedFile(ctx context.Context, f openai.VectorStoreFile) domain.StoredFile {
	sf := domain.StoredFile{
		ID:         f.ID,
		Status:     f.Status,
		UsageBytes: f.UsageBytes,
		CreatedAt:  time.Unix(f.CreatedAt, 0).UTC(),
	}
	if f.LastError != nil {
		sf.LastError = f.LastError.Message
	}
	// filenames live on the raw file object
	if raw, err := s.client.GetFile(ctx, f.ID); err == nil {
		sf.Filename = raw.Filename
	}
	return sf
}

// DeleteFile detaches fileID from the vector store and deletes the file.
func (s *RAGService) DeleteFile(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return domain.ErrEmptyFileID
	}

	vsID, err := s.lifecycle.Current(ctx)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteVectorStoreFile(ctx, vsID, fileID); err != nil {
		if openai.IsNotFound(err) {
			return fmt.Errorf("%w: %s", domain.ErrFileNotFound, fileID)
		}
		return fmt.Errorf("detach file: %w", err)
	}

	if _, err := s.client.DeleteFile(ctx, fileID); err != nil && !openai.IsNotFound(err) {
		return fmt.Errorf("delete file: %w", err)
	}

	logging.NewLogger(ctx).LogInfof("delete_file", "deleted file_id=%s from vector_store_id=%s", fileID, vsID)
	return nil
}

// ListStores lists remote vector stores and marks the one this service owns.
func (s *RAGService) ListStores(ctx context.Context) ([]domain.StoreInfo, error) {
	owned, err := s.lifecycle.Current(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoVectorStore) {
		return nil, err
	}

	page, err := s.client.ListVectorStores(ctx, openai.ListParams{Limit: listStoresLimit})
	if err != nil {
		return nil, fmt.Errorf("list vector stores: %w", err)
	}

	out := make([]domain.StoreInfo, 0, len(page.Data))
	for _, vs := range page.Data {
		info := StoreInfo(vs)
		info.Owned = owned != "" && vs.ID == owned
		out = append(out, info)
	}
	return out, nil
}

// DescribeStore returns details of the current vector store.
func (s *RAGService) DescribeStore(ctx context.Context) (*domain.StoreInfo, error) {
	vs, err := s.lifecycle.Describe(ctx)
	if err != nil {
		return nil, err
	}
	info := StoreInfo(*vs)
	info.Owned = true
	return &info, nil
}

// DeleteStore deletes the current vector store and returns its id.
func (s *RAGService) DeleteStore(ctx context.Context) (string, error) {
	return s.lifecycle.Delete(ctx)
}

// StoreInfo converts a remote vector store.
func StoreInfo(vs openai.VectorStore) domain.StoreInfo {
	info := domain.StoreInfo{
		ID:         vs.ID,
		Name:       vs.Name,
		Status:     vs.Status,
		UsageBytes: vs.UsageBytes,
		FileCounts: fileCounts(vs.FileCounts),
		CreatedAt:  time.Unix(vs.CreatedAt, 0).UTC(),
	}
	if vs.LastActiveAt > 0 {
		t := time.Unix(vs.LastActiveAt, 0).UTC()
		info.LastActiveAt = &t
	}
	if vs.ExpiresAt > 0 {
		t := time.Unix(vs.ExpiresAt, 0).UTC()
		info.ExpiresAt = &t
	}
	return info
}

func fileCounts(fc openai.FileCounts) domain.FileCounts {
	return domain.FileCounts{
		InProgress: fc.InProgress,
		Completed:  fc.Completed,
		Failed:     fc.Failed,
		Cancelled:  fc.Cancelled,
		Total:      fc.Total,
	}
}

func citations(in []openai.Citation) []domain.Citation {
	out := make([]domain.Citation, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Citation{FileID: c.FileID, Filename: c.Filename})
	}
	return out
}

// SanitizeFilename keeps the base name and replaces characters that are
// unsafe in paths or object keys.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 200 {
		ext := filepath.Ext(out)
		if len(ext) > 20 {
			ext = ""
		}
		out = strings.ToValidUTF8(out[:200-len(ext)], "") + ext
	}
	return out
}
