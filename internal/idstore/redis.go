package idstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "openfast:id:" // openfast:id:{name} -> JSON record
	redisIndexKey  = "openfast:ids" // set of names
)

type redisRecord struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore keeps one JSON value per name plus a set indexing all names.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func OpenRedis(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	data, err := s.client.Get(ctx, redisKeyPrefix+name).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get id for %s: %w", name, err)
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return "", fmt.Errorf("failed to unmarshal id record: %w", err)
	}
	return rec.ID, nil
}

func (s *RedisStore) Set(ctx context.Context, name, id string) error {
	if err := validatePair(name, id); err != nil {
		return err
	}

	data, err := json.Marshal(redisRecord{ID: id, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal id record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+name, data, 0)
	pipe.SAdd(ctx, redisIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set id for %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+name)
	pipe.SRem(ctx, redisIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete id for %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	names, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		data, err := s.client.Get(ctx, redisKeyPrefix+name).Result()
		if err == redis.Nil {
			// index entry outlived its value; skip it
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get id for %s: %w", name, err)
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal id record: %w", err)
		}
		out = append(out, Entry{Name: name, ID: rec.ID, UpdatedAt: rec.UpdatedAt})
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
