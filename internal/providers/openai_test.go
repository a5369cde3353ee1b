package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI is a minimal stand-in for the endpoints diffchat uses.
type fakeOpenAI struct {
	t *testing.T

	mu            sync.Mutex
	calls         []string
	stores        []map[string]any
	batchStatus   string
	failedFiles   int
	pendingPolls  int // polls answered with in_progress before batchStatus
	files         []string
	lastResponse  map[string]any
	uploadedName  string
	uploadedBody  string
	uploadPurpose string
	status        int // forced status for every request when non-zero
}

func (f *fakeOpenAI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /vector_stores", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"object": "list", "data": f.stores, "has_more": false})
	})
	mux.HandleFunc("POST /vector_stores", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		vs := map[string]any{"id": "vs_created", "object": "vector_store", "name": body["name"]}
		f.mu.Lock()
		f.stores = append(f.stores, vs)
		f.mu.Unlock()
		writeJSON(w, vs)
	})
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseMultipartForm(1<<20))
		file, hdr, err := r.FormFile("file")
		require.NoError(f.t, err)
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploadedName = hdr.Filename
		f.uploadedBody = string(data)
		f.uploadPurpose = r.FormValue("purpose")
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "file_1", "object": "file", "purpose": "assistants", "filename": hdr.Filename, "bytes": len(data)})
	})
	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		data := make([]any, 0, len(f.files))
		for _, id := range f.files {
			data = append(data, map[string]any{
				"id": id, "object": "file", "bytes": 12, "created_at": 1700000000,
				"filename": id + ".diff", "purpose": "assistants", "status": "processed",
			})
		}
		f.mu.Unlock()
		writeJSON(w, map[string]any{"object": "list", "data": data, "has_more": false})
	})
	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, existing := range f.files {
			if existing == id {
				f.files = append(f.files[:i], f.files[i+1:]...)
				writeJSON(w, map[string]any{"id": id, "object": "file", "deleted": true})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such file","type":"invalid_request_error"}}`))
	})
	mux.HandleFunc("POST /vector_stores/{vs}/file_batches", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.batch(r.PathValue("vs"), "in_progress"))
	})
	mux.HandleFunc("GET /vector_stores/{vs}/file_batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "vsfb_1" {
			http.NotFound(w, r)
			return
		}
		f.mu.Lock()
		status := f.batchStatus
		if f.pendingPolls != 0 {
			f.pendingPolls--
			status = "in_progress"
		}
		f.mu.Unlock()
		writeJSON(w, f.batch(r.PathValue("vs"), status))
	})
	mux.HandleFunc("POST /responses", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.lastResponse = body
		f.mu.Unlock()
		writeJSON(w, map[string]any{
			"id":     "resp_2",
			"object": "response",
			"status": "completed",
			"model":  body["model"],
			"output": []any{map[string]any{
				"type":   "message",
				"id":     "msg_1",
				"role":   "assistant",
				"status": "completed",
				"content": []any{map[string]any{
					"type":        "output_text",
					"text":        "Looks good.",
					"annotations": []any{},
				}},
			}},
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		status := f.status
		f.mu.Unlock()
		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"denied","type":"invalid_request_error"}}`))
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func (f *fakeOpenAI) batch(vs, status string) map[string]any {
	counts := map[string]any{"in_progress": 0, "completed": 1, "failed": f.failedFiles, "cancelled": 0, "total": 1}
	if status == "in_progress" {
		counts = map[string]any{"in_progress": 1, "completed": 0, "failed": 0, "cancelled": 0, "total": 1}
	}
	return map[string]any{
		"id":              "vsfb_1",
		"object":          "vector_store.files_batch",
		"vector_store_id": vs,
		"status":          status,
		"file_counts":     counts,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestOpenAI(t *testing.T) (*OpenAI, *fakeOpenAI) {
	t.Helper()
	fake := &fakeOpenAI{t: t, batchStatus: "completed"}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	o, err := NewOpenAI(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return o, fake
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	require.Error(t, err)
}

func TestOpenAI_Name(t *testing.T) {
	o, _ := newTestOpenAI(t)
	assert.Equal(t, "openai", o.Name())
}

func TestOpenAI_ListCollectionsFiltersByName(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.stores = []map[string]any{
		{"id": "vs_a", "object": "vector_store", "name": "other"},
		{"id": "vs_b", "object": "vector_store", "name": "diff-store"},
		{"id": "vs_c", "object": "vector_store", "name": "diff-store"},
	}

	got, err := o.ListCollections(context.Background(), "diff-store", 100)
	require.NoError(t, err)
	assert.Equal(t, []Collection{{ID: "vs_b", Name: "diff-store"}, {ID: "vs_c", Name: "diff-store"}}, got)
}

func TestOpenAI_CreateCollection(t *testing.T) {
	o, _ := newTestOpenAI(t)
	c, err := o.CreateCollection(context.Background(), "diff-store")
	require.NoError(t, err)
	assert.Equal(t, Collection{ID: "vs_created", Name: "diff-store"}, c)
}

func TestOpenAI_UploadFile(t *testing.T) {
	o, fake := newTestOpenAI(t)
	id, err := o.UploadFile(context.Background(), "abc123.diff", []byte("diff --git a/x b/x\n"))
	require.NoError(t, err)
	assert.Equal(t, "file_1", id)
	assert.Equal(t, "abc123.diff", fake.uploadedName)
	assert.Equal(t, "diff --git a/x b/x\n", fake.uploadedBody)
	assert.Equal(t, "assistants", fake.uploadPurpose)
}

func TestOpenAI_IndexFileWaitsForCompletion(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.pendingPolls = 2
	require.NoError(t, o.IndexFile(context.Background(), "vs_1", "file_1"))
	assert.Equal(t, []string{
		"POST /vector_stores/vs_1/file_batches",
		"GET /vector_stores/vs_1/file_batches/vsfb_1",
		"GET /vector_stores/vs_1/file_batches/vsfb_1",
		"GET /vector_stores/vs_1/file_batches/vsfb_1",
	}, fake.calls)
}

func TestOpenAI_IndexFileStopsOnContextDone(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.pendingPolls = -1
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := o.IndexFile(ctx, "vs_1", "file_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch")
}

func TestOpenAI_IndexFileFailures(t *testing.T) {
	t.Run("failed batch", func(t *testing.T) {
		o, fake := newTestOpenAI(t)
		fake.batchStatus = "failed"
		err := o.IndexFile(context.Background(), "vs_1", "file_1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed")
	})
	t.Run("failed file in completed batch", func(t *testing.T) {
		o, fake := newTestOpenAI(t)
		fake.failedFiles = 1
		err := o.IndexFile(context.Background(), "vs_1", "file_1")
		require.Error(t, err)
	})
}

func TestOpenAI_ListAndDeleteFiles(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.files = []string{"file_a", "file_b"}
	ctx := context.Background()

	files, err := o.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []File{
		{ID: "file_a", Filename: "file_a.diff", Bytes: 12},
		{ID: "file_b", Filename: "file_b.diff", Bytes: 12},
	}, files)

	require.NoError(t, o.DeleteFile(ctx, "file_a"))
	assert.Contains(t, fake.calls, "DELETE /files/file_a")
	assert.Equal(t, []string{"file_b"}, fake.files)

	err = o.DeleteFile(ctx, "file_missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestOpenAI_CreateTurn(t *testing.T) {
	o, fake := newTestOpenAI(t)
	turn, err := o.CreateTurn(context.Background(), TurnRequest{
		Model:          "gpt-4o-mini",
		Instructions:   "You are QA.",
		Input:          "Any bugs?",
		PreviousTurnID: "resp_1",
		CollectionIDs:  []string{"vs_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Turn{ID: "resp_2", OutputText: "Looks good."}, turn)

	body := fake.lastResponse
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, "You are QA.", body["instructions"])
	assert.Equal(t, "Any bugs?", body["input"])
	assert.Equal(t, "resp_1", body["previous_response_id"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "file_search", tool["type"])
	assert.Equal(t, []any{"vs_1"}, tool["vector_store_ids"])
}

func TestOpenAI_CreateTurnWithoutContinuation(t *testing.T) {
	o, fake := newTestOpenAI(t)
	_, err := o.CreateTurn(context.Background(), TurnRequest{Model: "gpt-4o-mini", Input: "hi"})
	require.NoError(t, err)
	_, has := fake.lastResponse["previous_response_id"]
	assert.False(t, has)
	_, has = fake.lastResponse["tools"]
	assert.False(t, has)
}

func TestOpenAI_AuthErrorIsNotRetried(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.status = http.StatusUnauthorized

	_, err := o.CreateTurn(context.Background(), TurnRequest{Model: "m", Input: "x"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Len(t, fake.calls, 1)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "creating response", apiErr.Op)
}

func TestOpenAI_ServerErrorIsNotRetried(t *testing.T) {
	o, fake := newTestOpenAI(t)
	fake.status = http.StatusInternalServerError

	_, err := o.ListCollections(context.Background(), "diff-store", 100)
	require.Error(t, err)
	assert.False(t, IsAuthError(err))
	assert.Len(t, fake.calls, 1)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(&APIError{StatusCode: 403}))
	assert.False(t, IsAuthError(&APIError{StatusCode: 429}))
	assert.False(t, IsAuthError(io.EOF))
	assert.False(t, IsAuthError(nil))
}
