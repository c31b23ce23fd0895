package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openfast-rag/openfast-rag-backend/internal/idstore"
	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

type LifecycleOptions struct {
	// Name is the logical store name; it is both the idstore key and the
	// remote store name.
	Name string
	// ExpiresAfterDays > 0 asks the service to expire the store after that
	// many idle days.
	ExpiresAfterDays int
}

// Lifecycle owns the one remote vector store this service writes to.
type Lifecycle struct {
	client *openai.Client
	ids    idstore.Store
	opts   LifecycleOptions

	mu       sync.Mutex
	verified string // id confirmed to exist by this process
}

func NewLifecycle(client *openai.Client, ids idstore.Store, opts LifecycleOptions) *Lifecycle {
	return &Lifecycle{client: client, ids: ids, opts: opts}
}

func (l *Lifecycle) Name() string { return l.opts.Name }

// GetOrCreate returns the persisted store id, creating and persisting a new
// store when none exists or the persisted one is gone.
func (l *Lifecycle) GetOrCreate(ctx context.Context) (string, error) {
	logger := logging.NewLogger(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.persisted(ctx)
	if err != nil {
		return "", err
	}

	if id != "" {
		if id == l.verified {
			return id, nil
		}
		alive, reason, err := l.check(ctx, id)
		if err != nil {
			return "", err
		}
		if alive {
			l.verified = id
			return id, nil
		}
		logger.LogWarnf("get_or_create_vector_store", "persisted vector_store_id=%s is %s, creating a new one", id, reason)
		if err := l.ids.Delete(ctx, l.opts.Name); err != nil {
			return "", fmt.Errorf("forget vector store: %w", err)
		}
		l.verified = ""
	}

	req := openai.CreateVectorStoreRequest{Name: l.opts.Name}
	if l.opts.ExpiresAfterDays > 0 {
		req.ExpiresAfter = &openai.ExpiresAfter{Anchor: "last_active_at", Days: l.opts.ExpiresAfterDays}
	}
	vs, err := l.client.CreateVectorStore(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}

	if err := l.ids.Set(ctx, l.opts.Name, vs.ID); err != nil {
		// an unpersisted store would be orphaned on the next call
		if _, delErr := l.client.DeleteVectorStore(ctx, vs.ID); delErr != nil {
			logger.LogErrorf("get_or_create_vector_store", "orphaned vector_store_id=%s: %v", vs.ID, delErr)
		}
		return "", fmt.Errorf("persist vector store id: %w", err)
	}

	l.verified = vs.ID
	logger.LogInfof("get_or_create_vector_store", "created vector_store_id=%s name=%s", vs.ID, l.opts.Name)
	return vs.ID, nil
}

// Current returns the persisted id without touching the remote service.
func (l *Lifecycle) Current(ctx context.Context) (string, error) {
	id, err := l.persisted(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", domain.ErrNoVectorStore
	}
	return id, nil
}

// Describe fetches remote details of the current store.
func (l *Lifecycle) Describe(ctx context.Context) (*openai.VectorStore, error) {
	id, err := l.Current(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := l.client.GetVectorStore(ctx, id)
	if openai.IsNotFound(err) {
		if err := l.Forget(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrNoVectorStore
	}
	if err != nil {
		return nil, fmt.Errorf("get vector store: %w", err)
	}
	return vs, nil
}

// Delete removes the remote store and the persisted id.
func (l *Lifecycle) Delete(ctx context.Context) (string, error) {
	logger := logging.NewLogger(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.persisted(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", domain.ErrNoVectorStore
	}

	if _, err := l.client.DeleteVectorStore(ctx, id); err != nil {
		if !openai.IsNotFound(err) {
			return "", fmt.Errorf("delete vector store: %w", err)
		}
		logger.LogWarnf("delete_vector_store", "vector_store_id=%s already gone remotely", id)
	}

	if err := l.ids.Delete(ctx, l.opts.Name); err != nil {
		return "", fmt.Errorf("forget vector store: %w", err)
	}
	l.verified = ""
	logger.LogInfof("delete_vector_store", "deleted vector_store_id=%s", id)
	return id, nil
}

// Forget drops the mapping if it still points at id. Used when the service
// reports the store as missing.
func (l *Lifecycle) Forget(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.forgetLocked(ctx, id)
}

func (l *Lifecycle) forgetLocked(ctx context.Context, id string) error {
	if l.verified == id {
		l.verified = ""
	}
	current, err := l.persisted(ctx)
	if err != nil {
		return err
	}
	if current != id {
		return nil
	}
	if err := l.ids.Delete(ctx, l.opts.Name); err != nil {
		return fmt.Errorf("forget vector store: %w", err)
	}
	logging.NewLogger(ctx).LogWarnf("forget_vector_store", "vector_store_id=%s no longer exists, mapping cleared", id)
	return nil
}

// Reconcile checks that the persisted store still exists remotely and clears
// the mapping when it does not.
func (l *Lifecycle) Reconcile(ctx context.Context) (domain.ReconcileResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.persisted(ctx)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	if id == "" {
		return domain.ReconcileResult{Action: domain.ReconcileNone}, nil
	}

	alive, reason, err := l.check(ctx, id)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	if alive {
		l.verified = id
		return domain.ReconcileResult{Action: domain.ReconcileVerified, VectorStoreID: id}, nil
	}

	if err := l.forgetLocked(ctx, id); err != nil {
		return domain.ReconcileResult{}, err
	}
	return domain.ReconcileResult{Action: domain.ReconcileForgotten, VectorStoreID: id, Reason: reason}, nil
}

func (l *Lifecycle) persisted(ctx context.Context) (string, error) {
	id, err := l.ids.Get(ctx, l.opts.Name)
	if errors.Is(err, idstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read vector store id: %w", err)
	}
	return id, nil
}

// check reports whether id is usable. Transport failures are returned as
// errors so a flaky network never causes a new store to be created.
func (l *Lifecycle) check(ctx context.Context, id string) (bool, string, error) {
	vs, err := l.client.GetVectorStore(ctx, id)
	if openai.IsNotFound(err) {
		return false, "not found", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("verify vector store: %w", err)
	}
	if vs.Status == openai.StatusExpired {
		return false, openai.StatusExpired, nil
	}
	return true, "", nil
}
