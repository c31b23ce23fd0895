package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfast-rag/openfast-rag-backend/internal/idstore"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai"
	"github.com/openfast-rag/openfast-rag-backend/internal/openai/openaitest"
	"github.com/openfast-rag/openfast-rag-backend/internal/rag/domain"
)

type fakeArchiver struct {
	keys []string
	data [][]byte
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, key string, r io.Reader, size int64) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(b)) != size {
		return "", errors.New("size mismatch")
	}
	a.keys = append(a.keys, key)
	a.data = append(a.data, b)
	return "archive/" + key, nil
}

func newService(t *testing.T) (*RAGService, *openaitest.Server, string) {
	t.Helper()
	srv := openaitest.New(t)
	client := srv.Client(t)
	lc := NewLifecycle(client, idstore.NewMemoryStore(), LifecycleOptions{Name: testStoreName})
	dir := t.TempDir()
	svc := NewRAGService(client, lc, Options{
		Instructions:  "Answer from the documents.",
		MaxNumResults: 5,
		UploadDir:     dir,
		Poll:          openai.PollOptions{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second},
	})
	return svc, srv, dir
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spool files must be removed")
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	svc, srv, dir := newService(t)

	res, err := svc.Upload(ctx, "notes.txt", strings.NewReader("hello world"))
	require.NoError(t, err)

	assert.Equal(t, "File processed and indexed", res.Message)
	assert.NotEmpty(t, res.VectorStoreID)
	assert.NotEmpty(t, res.FileID)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, openai.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.FileCounts.Completed)
	assert.Equal(t, int64(11), res.Bytes)
	assert.Equal(t, "notes.txt", res.Filename)

	assert.Equal(t, []byte("hello world"), srv.FileContent(res.FileID))
	assert.Equal(t, []string{res.FileID}, srv.StoreFileIDs(res.VectorStoreID))
	assertSpoolEmpty(t, dir)

	// a second upload lands in the same store
	res2, err := svc.Upload(ctx, "more.txt", strings.NewReader("more"))
	require.NoError(t, err)
	assert.Equal(t, res.VectorStoreID, res2.VectorStoreID)
	assert.Equal(t, 1, srv.Calls(openaitest.OpCreateStore))
}

func TestUpload_PollsUntilDone(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.BatchPolls = 3

	res, err := svc.Upload(context.Background(), "a.md", strings.NewReader("# a"))
	require.NoError(t, err)
	assert.Equal(t, openai.StatusCompleted, res.Status)
	assert.GreaterOrEqual(t, srv.Calls(openaitest.OpGetBatch), 3)
}

func TestUpload_EmptyFilename(t *testing.T) {
	svc, srv, _ := newService(t)

	for _, name := range []string{"", "   ", "..", "/"} {
		_, err := svc.Upload(context.Background(), name, strings.NewReader("x"))
		assert.ErrorIs(t, err, domain.ErrEmptyFilename, name)
	}
	assert.Equal(t, 0, srv.Calls(openaitest.OpUploadFile))
}

func TestUpload_IndexingFailed(t *testing.T) {
	svc, srv, dir := newService(t)
	srv.BatchStatus = openai.StatusFailed

	_, err := svc.Upload(context.Background(), "bad.pdf", strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, domain.ErrIndexingFailed)
	assertSpoolEmpty(t, dir)
}

func TestUpload_UploadErrorRemovesSpool(t *testing.T) {
	svc, srv, dir := newService(t)
	srv.Fail(openaitest.OpUploadFile, http.StatusInternalServerError)

	_, err := svc.Upload(context.Background(), "doc.txt", strings.NewReader("x"))
	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assertSpoolEmpty(t, dir)
}

func TestUpload_BatchCreateFailureDiscardsFile(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.Fail(openaitest.OpCreateBatch, http.StatusInternalServerError)

	_, err := svc.Upload(context.Background(), "doc.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 1, srv.Calls(openaitest.OpDeleteFile))
}

func TestUpload_SanitizesName(t *testing.T) {
	svc, srv, _ := newService(t)

	res, err := svc.Upload(context.Background(), "../../etc/pa:ss?.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "pa_ss_.txt", res.Filename)

	f := srv.StoreFileIDs(res.VectorStoreID)
	require.Len(t, f, 1)
}

func TestUpload_Archive(t *testing.T) {
	svc, _, _ := newService(t)
	arch := &fakeArchiver{}
	svc.WithArchiver(arch)

	res, err := svc.Upload(context.Background(), "doc.txt", strings.NewReader("payload"))
	require.NoError(t, err)
	require.Len(t, arch.keys, 1)
	assert.True(t, strings.HasSuffix(arch.keys[0], "-doc.txt"))
	assert.Equal(t, []byte("payload"), arch.data[0])
	assert.Equal(t, "archive/"+arch.keys[0], res.ArchiveKey)
}

func TestUpload_ArchiveFailureIsNotFatal(t *testing.T) {
	svc, _, _ := newService(t)
	svc.WithArchiver(&fakeArchiver{err: errors.New("bucket unavailable")})

	res, err := svc.Upload(context.Background(), "doc.txt", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveKey)
	assert.NotEmpty(t, res.FileID)
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)
	srv.Answer = "Paris is the capital."
	srv.Citations = []openai.Citation{
		{FileID: "file_a", Filename: "a.txt"},
		{FileID: "file_a", Filename: "a.txt"},
		{FileID: "file_b", Filename: "b.txt"},
	}

	ans, err := svc.Ask(ctx, "  What is the capital?  ")
	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", ans.Answer)
	assert.NotEmpty(t, ans.VectorStoreID)
	assert.Equal(t, []domain.Citation{
		{FileID: "file_a", Filename: "a.txt"},
		{FileID: "file_b", Filename: "b.txt"},
	}, ans.Citations)

	req := srv.LastResponseRequest()
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, "What is the capital?", req.Input)
	assert.Equal(t, "Answer from the documents.", req.Instructions)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "file_search", req.Tools[0].Type)
	assert.Equal(t, []string{ans.VectorStoreID}, req.Tools[0].VectorStoreIDs)
	assert.Equal(t, 5, req.Tools[0].MaxNumResults)
}

func TestAsk_FailedResponse(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.ResponseError = "model crashed"

	_, err := svc.Ask(context.Background(), "q")
	require.ErrorIs(t, err, domain.ErrUpstreamFailed)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc, srv, _ := newService(t)

	_, err := svc.Ask(context.Background(), " \n\t")
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	assert.Equal(t, 0, srv.Calls(openaitest.OpCreateStore))
	assert.Equal(t, 0, srv.Calls(openaitest.OpCreateResponse))
}

func TestAsk_StoreGoneIsForgotten(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	first, err := svc.Ask(ctx, "q")
	require.NoError(t, err)

	// the process still trusts the store; the service reports it missing
	srv.DeleteStoreOutOfBand(first.VectorStoreID)
	_, err = svc.Ask(ctx, "q")
	assert.True(t, openai.IsNotFound(err))

	_, err = svc.Lifecycle().Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoVectorStore)

	// the next call starts over with a fresh store
	next, err := svc.Ask(ctx, "q")
	require.NoError(t, err)
	assert.NotEqual(t, first.VectorStoreID, next.VectorStoreID)
}

func TestAskStream(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.Answer = "Hello there."
	srv.StreamDeltas = []string{"Hello", " there", "."}
	srv.Citations = []openai.Citation{{FileID: "file_a", Filename: "a.txt"}}

	stream, err := svc.AskStream(context.Background(), "greet")
	require.NoError(t, err)
	defer stream.Close()

	var deltas []string
	for {
		d, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		deltas = append(deltas, d)
	}

	assert.Equal(t, []string{"Hello", " there", "."}, deltas)
	ans := stream.Answer()
	assert.Equal(t, "Hello there.", ans.Answer)
	assert.Equal(t, stream.VectorStoreID(), ans.VectorStoreID)
	assert.Equal(t, []domain.Citation{{FileID: "file_a", Filename: "a.txt"}}, ans.Citations)
}

func TestAskStream_ErrorEvent(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.StreamDeltas = []string{"par"}
	srv.StreamFailure = "model overloaded"

	stream, err := svc.AskStream(context.Background(), "q")
	require.NoError(t, err)
	defer stream.Close()

	d, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "par", d)

	_, err = stream.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestAskStream_EmptyQuestion(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.AskStream(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, _, err := svc.ListFiles(ctx)
	assert.ErrorIs(t, err, domain.ErrNoVectorStore)

	var uploaded []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		res, err := svc.Upload(ctx, name, strings.NewReader(name))
		require.NoError(t, err)
		uploaded = append(uploaded, res.FileID)
	}

	vsID, files, err := svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, vsID)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, uploaded[i], f.ID)
		assert.Equal(t, openai.StatusCompleted, f.Status)
	}
	assert.Equal(t, "a.txt", files[0].Filename)
}

func TestListFiles_Paginates(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	total := listFilesPerPage + 3
	var fileIDs []string
	for i := 0; i < total; i++ {
		f, err := svc.client.UploadFile(ctx, "f.txt", bytes.NewReader([]byte("x")), "")
		require.NoError(t, err)
		fileIDs = append(fileIDs, f.ID)
	}
	vsID, err := svc.Lifecycle().GetOrCreate(ctx)
	require.NoError(t, err)
	_, err = svc.client.CreateFileBatch(ctx, vsID, fileIDs)
	require.NoError(t, err)

	_, files, err := svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, total)
	assert.Equal(t, 2, srv.Calls(openaitest.OpListStoreFiles))
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	assert.ErrorIs(t, svc.DeleteFile(ctx, " "), domain.ErrEmptyFileID)
	assert.ErrorIs(t, svc.DeleteFile(ctx, "file_x"), domain.ErrNoVectorStore)

	res, err := svc.Upload(ctx, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, res.FileID))
	assert.Empty(t, srv.StoreFileIDs(res.VectorStoreID))
	assert.False(t, srv.HasFile(res.FileID))

	err = svc.DeleteFile(ctx, res.FileID)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestDeleteFile_RawFileAlreadyGone(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	res, err := svc.Upload(ctx, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = svc.client.DeleteFile(ctx, res.FileID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, res.FileID))
	assert.Empty(t, srv.StoreFileIDs(res.VectorStoreID))
}

func TestListStores(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	other := srv.AddStore("someone-else")

	stores, err := svc.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, other, stores[0].ID)
	assert.False(t, stores[0].Owned)

	ownID, err := svc.Lifecycle().GetOrCreate(ctx)
	require.NoError(t, err)

	stores, err = svc.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	for _, s := range stores {
		assert.Equal(t, s.ID == ownID, s.Owned, s.ID)
	}
}

func TestDescribeAndDeleteStore(t *testing.T) {
	ctx := context.Background()
	svc, srv, _ := newService(t)

	_, err := svc.DescribeStore(ctx)
	assert.ErrorIs(t, err, domain.ErrNoVectorStore)

	res, err := svc.Upload(ctx, "a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	info, err := svc.DescribeStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.VectorStoreID, info.ID)
	assert.Equal(t, testStoreName, info.Name)
	assert.Equal(t, 1, info.FileCounts.Completed)
	assert.True(t, info.Owned)
	assert.NotNil(t, info.LastActiveAt)

	id, err := svc.DeleteStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.VectorStoreID, id)
	assert.False(t, srv.HasStore(id))

	_, err = svc.DeleteStore(ctx)
	assert.ErrorIs(t, err, domain.ErrNoVectorStore)
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":            "report.pdf",
		"  spaced name.txt ":    "spaced name.txt",
		"dir/sub/file.md":       "file.md",
		`C:\Users\me\notes.txt`: "notes.txt",
		"../secret":             "secret",
		".env":                  "env",
		"a<b>c.txt":             "a_b_c.txt",
		"tab\tname.txt":         "tabname.txt",
		"":                      "",
		"..":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}

	long := strings.Repeat("x", 300) + ".pdf"
	got := SanitizeFilename(long)
	assert.Len(t, got, 200)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}
