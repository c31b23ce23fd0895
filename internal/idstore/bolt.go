package idstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketIDs = []byte("resource_ids")

type boltRecord struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
}

// BoltStore keeps entries in a single bbolt bucket. Keys iterate in byte
// order, so List needs no sort.
type BoltStore struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIDs); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketIDs, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	var rec boltRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIDs).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *BoltStore) Set(_ context.Context, name, id string) error {
	if err := validatePair(name, id); err != nil {
		return err
	}

	data, err := json.Marshal(boltRecord{ID: id, UpdatedAt: time.Now().UTC().UnixMilli()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIDs).Put([]byte(name), data)
	})
}

func (s *BoltStore) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIDs).Delete([]byte(name))
	})
}

func (s *BoltStore) List(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIDs).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			out = append(out, Entry{
				Name:      string(k),
				ID:        rec.ID,
				UpdatedAt: time.UnixMilli(rec.UpdatedAt).UTC(),
			})
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Ping(context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketIDs) == nil {
			return fmt.Errorf("bucket %s missing", bucketIDs)
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
