package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Stream event types relayed to callers.
const (
	EventOutputTextDelta = "response.output_text.delta"
	EventCompleted       = "response.completed"
	EventFailed          = "response.failed"
	EventIncomplete      = "response.incomplete"
	EventError           = "error"
)

// StreamEvent is one decoded server-sent event.
type StreamEvent struct {
	Type     string    `json:"type"`
	Delta    string    `json:"delta,omitempty"`
	Response *Response `json:"response,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Err returns the terminal error carried by failed/error events, or nil.
func (e *StreamEvent) Err() error {
	switch e.Type {
	case EventError:
		return fmt.Errorf("openai stream error: %s", firstNonEmpty(e.Message, e.Code, "unknown"))
	case EventFailed, EventIncomplete:
		if e.Response != nil && e.Response.Error != nil {
			return fmt.Errorf("openai response %s: %s", e.Response.Status, e.Response.Error.Message)
		}
		return fmt.Errorf("openai response %s", strings.TrimPrefix(e.Type, "response."))
	}
	return nil
}

// ResponseStream reads server-sent events from a streaming response.
type ResponseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newResponseStream(body io.ReadCloser) *ResponseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &ResponseStream{body: body, scanner: sc}
}

// Recv returns the next event. It returns io.EOF once the stream ends.
func (s *ResponseStream) Recv() (*StreamEvent, error) {
	if s.done {
		return nil, io.EOF
	}

	var (
		eventName string
		data      bytes.Buffer
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if data.Len() == 0 {
				eventName = ""
				continue
			}
			ev, stop, err := decodeEvent(eventName, data.Bytes())
			if stop {
				s.done = true
				return nil, io.EOF
			}
			return ev, err
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventName = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	s.done = true
	// flush a trailing event that was not followed by a blank line
	if data.Len() > 0 {
		ev, stop, err := decodeEvent(eventName, data.Bytes())
		if !stop {
			return ev, err
		}
	}
	return nil, io.EOF
}

func (s *ResponseStream) Close() error {
	s.done = true
	return s.body.Close()
}

func decodeEvent(name string, data []byte) (*StreamEvent, bool, error) {
	if string(data) == "[DONE]" {
		return nil, true, nil
	}
	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false, fmt.Errorf("decode stream event: %w", err)
	}
	if ev.Type == "" {
		ev.Type = name
	}
	return &ev, false, nil
}

// CreateResponseStream starts a streaming response. The caller must Close
// the returned stream.
func (c *Client) CreateResponseStream(ctx context.Context, in ResponseRequest) (*ResponseStream, error) {
	in.Stream = true
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/responses", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(c.streamClient, req, "create_response_stream")
	if err != nil {
		return nil, err
	}
	return newResponseStream(resp.Body), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
