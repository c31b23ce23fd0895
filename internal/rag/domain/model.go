package domain

import "time"

// FileCounts mirrors the per-status file totals of a store or batch.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// UploadResult describes an uploaded and indexed document.
type UploadResult struct {
	Message       string     `json:"message"`
	VectorStoreID string     `json:"vector_store_id"`
	FileID        string     `json:"file_id"`
	Filename      string     `json:"filename"`
	Bytes         int64      `json:"bytes"`
	BatchID       string     `json:"batch_id"`
	Status        string     `json:"status"`
	FileCounts    FileCounts `json:"file_counts"`
	ArchiveKey    string     `json:"archive_key,omitempty"`
}

type Citation struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`
}

// Answer is the result of a retrieval-augmented question.
type Answer struct {
	Answer        string     `json:"answer"`
	VectorStoreID string     `json:"vector_store_id"`
	Citations     []Citation `json:"citations"`
}

// StoredFile is a document attached to the vector store.
type StoredFile struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename,omitempty"`
	Status     string    `json:"status"`
	UsageBytes int64     `json:"usage_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// StoreInfo describes a remote vector store.
type StoreInfo struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	UsageBytes   int64      `json:"usage_bytes"`
	FileCounts   FileCounts `json:"file_counts"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Owned        bool       `json:"owned"`
}

// Reconcile outcomes.
const (
	ReconcileNone      = "none"
	ReconcileVerified  = "verified"
	ReconcileForgotten = "forgotten"
)

type ReconcileResult struct {
	Action        string `json:"action"`
	VectorStoreID string `json:"vector_store_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
