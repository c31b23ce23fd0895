package openai

import (
	"context"
	"net/http"
	"strings"
)

type Tool struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
	MaxNumResults  int      `json:"max_num_results,omitempty"`
}

// FileSearchTool binds retrieval to one vector store.
func FileSearchTool(vectorStoreID string, maxNumResults int) Tool {
	return Tool{
		Type:           "file_search",
		VectorStoreIDs: []string{vectorStoreID},
		MaxNumResults:  maxNumResults,
	}
}

type ResponseRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Tools        []Tool `json:"tools,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

type Annotation struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type ContentPart struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

type OutputItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	Queries []string      `json:"queries,omitempty"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type Response struct {
	ID     string         `json:"id"`
	Object string         `json:"object"`
	Status string         `json:"status"`
	Model  string         `json:"model"`
	Output []OutputItem   `json:"output"`
	Error  *ResponseError `json:"error,omitempty"`
	Usage  *Usage         `json:"usage,omitempty"`
}

// Citation is a file referenced by the generated answer.
type Citation struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename,omitempty"`
}

// OutputText concatenates every output_text part of the message items.
func (r *Response) OutputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// Citations lists file_citation annotations in order of first appearance,
// one per file id.
func (r *Response) Citations() []Citation {
	seen := map[string]bool{}
	out := []Citation{}
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			for _, a := range part.Annotations {
				if a.Type != "file_citation" || a.FileID == "" || seen[a.FileID] {
					continue
				}
				seen[a.FileID] = true
				out = append(out, Citation{FileID: a.FileID, Filename: a.Filename})
			}
		}
	}
	return out
}

func (c *Client) CreateResponse(ctx context.Context, in ResponseRequest) (*Response, error) {
	in.Stream = false
	var out Response
	if err := c.doJSON(ctx, http.MethodPost, "/responses", in, &out, "create_response"); err != nil {
		return nil, err
	}
	return &out, nil
}
