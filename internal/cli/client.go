package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

// RemoteError is an error answer from the backend.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the backend HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	hc      *http.Client
}

func NewClient(baseURL, apiKey, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, token: token, hc: hc}
}

type StoreFiles struct {
	VectorStoreID string              `json:"vector_store_id"`
	Files         []domain.StoredFile `json:"files"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeRemoteError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeRemoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &RemoteError{StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// Upload streams r as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out domain.UploadResult
	if err := c.do(req, &out); err != nil {
		pr.Close()
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	var out domain.Answer
	if err := c.doJSON(ctx, http.MethodPost, "/ask", map[string]string{"question": question}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AskStream calls onDelta for every streamed chunk and returns the final
// answer from the done event.
func (c *Client) AskStream(ctx context.Context, question string, onDelta func(string)) (*domain.Answer, error) {
	data, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/ask/stream", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeRemoteError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "delta":
				var d struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(payload, &d); err != nil {
					return nil, fmt.Errorf("decode delta: %w", err)
				}
				if onDelta != nil {
					onDelta(d.Text)
				}
			case "done":
				var ans domain.Answer
				if err := json.Unmarshal(payload, &ans); err != nil {
					return nil, fmt.Errorf("decode answer: %w", err)
				}
				return &ans, nil
			case "error":
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(payload, &e)
				return nil, &RemoteError{StatusCode: resp.StatusCode, Message: e.Error}
			}
		case line == "":
			event = ""
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended without an answer")
}

func (c *Client) Files(ctx context.Context) (*StoreFiles, error) {
	var out StoreFiles
	if err := c.doJSON(ctx, http.MethodGet, "/files", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil)
}

func (c *Client) Store(ctx context.Context) (*domain.StoreInfo, error) {
	var out struct {
		Store domain.StoreInfo `json:"store"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/store", nil, &out); err != nil {
		return nil, err
	}
	return &out.Store, nil
}

func (c *Client) DeleteStore(ctx context.Context) (string, error) {
	var out struct {
		VectorStoreID string `json:"vector_store_id"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/store", nil, &out); err != nil {
		return "", err
	}
	return out.VectorStoreID, nil
}

func (c *Client) Stores(ctx context.Context) ([]domain.StoreInfo, error) {
	var out struct {
		Stores []domain.StoreInfo `json:"stores"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/stores", nil, &out); err != nil {
		return nil, err
	}
	return out.Stores, nil
}
