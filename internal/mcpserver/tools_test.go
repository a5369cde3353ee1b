package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/diffchat/internal/providers/providertest"
	"github.com/dshills/diffchat/internal/session"
	"github.com/dshills/diffchat/internal/state"
	"github.com/dshills/diffchat/internal/transcript"
)

type env struct {
	manager *session.Manager
	fake    *providertest.Fake
	history *transcript.Store
	dir     string
	mu      *sync.Mutex
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := state.Open(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	history, err := transcript.Open(filepath.Join(dir, "transcript.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	fake := providertest.New()
	m, err := session.New(session.Options{
		Roles:          map[string]string{"TechLead": "You are a tech lead."},
		Model:          "gpt-4o-mini",
		CollectionName: "diff-store",
		Store:          store,
		Index:          fake,
		Conversation:   fake,
		Recorder:       history,
	})
	require.NoError(t, err)
	return &env{manager: m, fake: fake, history: history, dir: dir, mu: &sync.Mutex{}}
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNew(t *testing.T) {
	e := newEnv(t)
	assert.NotNil(t, New("test", e.manager, e.history))
}

func TestAskTool_Definition(t *testing.T) {
	def := (&AskTool{}).Definition()
	assert.Equal(t, "ask_diff", def.Name)
	assert.ElementsMatch(t, []string{"role", "prompt"}, def.InputSchema.Required)
}

func TestAskTool_Handle(t *testing.T) {
	e := newEnv(t)
	tool := &AskTool{manager: e.manager, mu: e.mu}
	diff := filepath.Join(e.dir, "abc1234.diff")
	require.NoError(t, os.WriteFile(diff, []byte("diff --git a/a.go b/a.go\n+x\n"), 0o644))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"role":      "TechLead",
		"prompt":    "looks ok?",
		"feature":   "BASEL-1",
		"commit":    "abc1234",
		"diff_path": diff,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	text := resultText(res)
	assert.Contains(t, text, "echo: looks ok?")
	assert.Contains(t, text, "thread: thr_")
	assert.Equal(t, 1, e.fake.Count(providertest.OpUpload))

	n, err := e.history.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAskTool_Errors(t *testing.T) {
	e := newEnv(t)
	tool := &AskTool{manager: e.manager, mu: e.mu}

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing role", map[string]interface{}{"prompt": "p"}, "'role' is required"},
		{"missing prompt", map[string]interface{}{"role": "TechLead"}, "'prompt' is required"},
		{"unknown role", map[string]interface{}{"role": "Nobody", "prompt": "p"}, "Nobody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(res), tt.want)
		})
	}
	assert.Empty(t, e.fake.Calls())
}

func TestListThreadsTool(t *testing.T) {
	e := newEnv(t)
	_, err := e.manager.ResolveOrCreateConversation("F-1", "v1")
	require.NoError(t, err)
	_, err = e.manager.ResolveOrCreateConversation("", "")
	require.NoError(t, err)

	tool := &ListThreadsTool{manager: e.manager, mu: e.mu}
	res, err := tool.Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var threads []threadSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &threads))
	require.Len(t, threads, 2)
	features := []string{threads[0].Feature, threads[1].Feature}
	assert.ElementsMatch(t, []string{"F-1", ""}, features)
}

func TestShowThreadTool(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.manager.Ask(ctx, session.AskRequest{Role: "TechLead", Feature: "F-1", Commit: "v1", Prompt: "one"})
	require.NoError(t, err)
	_, err = e.manager.Ask(ctx, session.AskRequest{Role: "TechLead", Feature: "F-1", Commit: "v2", Prompt: "two"})
	require.NoError(t, err)

	tool := &ShowThreadTool{manager: e.manager, history: e.history, mu: e.mu}
	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"feature": "F-1", "limit": float64(1)}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))

	var detail threadDetail
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &detail))
	assert.Equal(t, "F-1", detail.Feature)
	assert.Equal(t, []string{"v1", "v2"}, detail.Commits)
	assert.True(t, detail.Chained)
	require.Len(t, detail.Turns, 1)
	assert.Equal(t, "two", detail.Turns[0].Prompt)
}

func TestShowThreadTool_Errors(t *testing.T) {
	e := newEnv(t)
	tool := &ShowThreadTool{manager: e.manager, mu: e.mu}

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"handle": "thr_missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "thr_missing")

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"feature": "NOPE"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
