package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
)

type FileBatch struct {
	ID            string     `json:"id"`
	Object        string     `json:"object"`
	CreatedAt     int64      `json:"created_at"`
	VectorStoreID string     `json:"vector_store_id"`
	Status        string     `json:"status"`
	FileCounts    FileCounts `json:"file_counts"`
}

// Done reports whether the batch left the in_progress state.
func (b *FileBatch) Done() bool {
	return b.Status != StatusInProgress
}

type PollOptions struct {
	Interval time.Duration
	// Timeout <= 0 means poll until ctx is done.
	Timeout time.Duration
}

func (c *Client) CreateFileBatch(ctx context.Context, vectorStoreID string, fileIDs []string) (*FileBatch, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("create file batch: no file ids")
	}
	in := struct {
		FileIDs []string `json:"file_ids"`
	}{FileIDs: fileIDs}

	var b FileBatch
	path := "/vector_stores/" + url.PathEscape(vectorStoreID) + "/file_batches"
	if err := c.doJSON(ctx, http.MethodPost, path, in, &b, "create_file_batch"); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetFileBatch(ctx context.Context, vectorStoreID, batchID string) (*FileBatch, error) {
	var b FileBatch
	path := "/vector_stores/" + url.PathEscape(vectorStoreID) + "/file_batches/" + url.PathEscape(batchID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &b, "get_file_batch"); err != nil {
		return nil, err
	}
	return &b, nil
}

// UploadAndPoll attaches already uploaded files to a vector store and waits
// until indexing finishes. The returned batch may be failed or cancelled;
// callers inspect Status and FileCounts.
func (c *Client) UploadAndPoll(ctx context.Context, vectorStoreID string, fileIDs []string, opts PollOptions) (*FileBatch, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	batch, err := c.CreateFileBatch(ctx, vectorStoreID, fileIDs)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(ctx)
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for !batch.Done() {
		select {
		case <-ctx.Done():
			return batch, fmt.Errorf("poll file batch %s: %w", batch.ID, ctx.Err())
		case <-ticker.C:
		}

		next, err := c.GetFileBatch(ctx, vectorStoreID, batch.ID)
		if err != nil {
			return batch, err
		}
		batch = next
		logger.LogInfof("poll_file_batch", "batch_id=%s status=%s completed=%d/%d",
			batch.ID, batch.Status, batch.FileCounts.Completed, batch.FileCounts.Total)
	}

	return batch, nil
}
