package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "rid-1")
	assert.Equal(t, "rid-1", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestLoggerIncludesRequestID(t *testing.T) {
	buf := captureLog(t)

	NewLogger(WithRequestID(context.Background(), "rid-42")).LogError("upload", errors.New("boom"))
	assert.Contains(t, buf.String(), "[error] request_id=rid-42 operation=upload error=boom")

	buf.Reset()
	NewLogger(context.Background()).LogInfof("ask", "model=%s", "gpt-4o")
	assert.Contains(t, buf.String(), "[info] request_id=unknown operation=ask model=gpt-4o")
}

func TestSetLevel(t *testing.T) {
	buf := captureLog(t)
	t.Cleanup(func() { SetLevel(LevelInfo) })
	logger := NewLogger(WithRequestID(context.Background(), "rid-7"))

	SetLevel("warn")
	logger.LogInfof("ask", "hidden")
	logger.LogWarnf("ask", "shown warn")
	logger.LogError("ask", errors.New("shown error"))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[warn] request_id=rid-7 operation=ask shown warn")
	assert.Contains(t, buf.String(), "shown error")

	buf.Reset()
	SetLevel("ERROR")
	logger.LogWarnf("ask", "quiet warn")
	logger.LogErrorf("ask", "loud %d", 1)
	assert.NotContains(t, buf.String(), "quiet warn")
	assert.Contains(t, buf.String(), "loud 1")

	buf.Reset()
	SetLevel("verbose")
	logger.LogInfof("ask", "back to info")
	assert.Contains(t, buf.String(), "back to info")
}
