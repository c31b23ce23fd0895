package domain

import "errors"

var (
	ErrNoVectorStore  = errors.New("no vector store has been created yet")
	ErrEmptyQuestion  = errors.New("question must not be empty")
	ErrEmptyFilename  = errors.New("filename must not be empty")
	ErrEmptyFileID    = errors.New("file id must not be empty")
	ErrFileNotFound   = errors.New("file not found in vector store")
	ErrIndexingFailed = errors.New("file indexing failed")
	ErrUpstreamFailed = errors.New("upstream response failed")
)
