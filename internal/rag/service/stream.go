package service

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

// AnswerStream yields text deltas of a streamed answer.
type AnswerStream struct {
	stream        *openai.ResponseStream
	vectorStoreID string

	text      strings.Builder
	final     *openai.Response
	completed bool
}

// Next returns the next non-empty text delta. It returns io.EOF after the
// response completed; any other error ends the stream.
func (a *AnswerStream) Next() (string, error) {
	for {
		ev, err := a.stream.Recv()
		if errors.Is(err, io.EOF) {
			if !a.completed {
				return "", fmt.Errorf("stream ended before the response completed")
			}
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}

		if err := ev.Err(); err != nil {
			return "", err
		}

		switch ev.Type {
		case openai.EventOutputTextDelta:
			if ev.Delta == "" {
				continue
			}
			a.text.WriteString(ev.Delta)
			return ev.Delta, nil
		case openai.EventCompleted:
			a.completed = true
			a.final = ev.Response
		}
	}
}

// Answer returns the answer assembled so far. After Next returned io.EOF it
// carries the final text and citations.
func (a *AnswerStream) Answer() domain.Answer {
	out := domain.Answer{
		Answer:        a.text.String(),
		VectorStoreID: a.vectorStoreID,
		Citations:     []domain.Citation{},
	}
	if a.final != nil {
		if text := a.final.OutputText(); text != "" {
			out.Answer = text
		}
		out.Citations = citations(a.final.Citations())
	}
	return out
}

func (a *AnswerStream) VectorStoreID() string { return a.vectorStoreID }

func (a *AnswerStream) Close() error {
	return a.stream.Close()
}
