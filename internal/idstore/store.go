// Package idstore persists the mapping from a logical resource name to the id
// the hosted service assigned to it.
package idstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("idstore: key not found")
	ErrInvalidKey = errors.New("idstore: name and id must be non-empty")
)

// Entry is one persisted name -> id mapping.
type Entry struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a small durable map. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, id string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidKey
	}
	return nil
}

func validatePair(name, id string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(id) == "" {
		return ErrInvalidKey
	}
	return nil
}
