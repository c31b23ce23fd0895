package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

type ExpiresAfter struct {
	Anchor string `json:"anchor"`
	Days   int    `json:"days"`
}

type VectorStore struct {
	ID           string        `json:"id"`
	Object       string        `json:"object"`
	Name         string        `json:"name"`
	Status       string        `json:"status"`
	UsageBytes   int64         `json:"usage_bytes"`
	CreatedAt    int64         `json:"created_at"`
	LastActiveAt int64         `json:"last_active_at,omitempty"`
	ExpiresAt    int64         `json:"expires_at,omitempty"`
	ExpiresAfter *ExpiresAfter `json:"expires_after,omitempty"`
	FileCounts   FileCounts    `json:"file_counts"`
}

type CreateVectorStoreRequest struct {
	Name         string        `json:"name"`
	ExpiresAfter *ExpiresAfter `json:"expires_after,omitempty"`
}

type ListParams struct {
	Limit int
	After string
}

func (p ListParams) encode() string {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.After != "" {
		q.Set("after", p.After)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type VectorStoreList struct {
	Data    []VectorStore `json:"data"`
	FirstID string        `json:"first_id"`
	LastID  string        `json:"last_id"`
	HasMore bool          `json:"has_more"`
}

type DeletionStatus struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func (c *Client) CreateVectorStore(ctx context.Context, in CreateVectorStoreRequest) (*VectorStore, error) {
	var vs VectorStore
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores", in, &vs, "create_vector_store"); err != nil {
		return nil, err
	}
	if vs.ID == "" {
		return nil, fmt.Errorf("create vector store: empty id in response")
	}
	return &vs, nil
}

func (c *Client) GetVectorStore(ctx context.Context, id string) (*VectorStore, error) {
	var vs VectorStore
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores/"+url.PathEscape(id), nil, &vs, "get_vector_store"); err != nil {
		return nil, err
	}
	return &vs, nil
}

func (c *Client) ListVectorStores(ctx context.Context, p ListParams) (*VectorStoreList, error) {
	var out VectorStoreList
	if err := c.doJSON(ctx, http.MethodGet, "/vector_stores"+p.encode(), nil, &out, "list_vector_stores"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteVectorStore(ctx context.Context, id string) (*DeletionStatus, error) {
	var out DeletionStatus
	if err := c.doJSON(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(id), nil, &out, "delete_vector_store"); err != nil {
		return nil, err
	}
	return &out, nil
}
