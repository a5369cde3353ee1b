package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/diffchat/internal/session"
	"github.com/dshills/diffchat/internal/transcript"
)

// AskTool handles the ask_diff MCP tool.
type AskTool struct {
	manager *session.Manager
	mu      *sync.Mutex
}

// Definition returns the MCP tool definition for ask_diff.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask_diff",
		mcp.WithDescription(
			"Ask a role-scoped question about a code change. When diff_path is given the diff is "+
				"indexed first. Questions with the same feature share one conversation across commits.",
		),
		mcp.WithString("role",
			mcp.Required(),
			mcp.Description("Configured reviewer role, e.g. TechLead"),
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The question to ask"),
		),
		mcp.WithString("feature",
			mcp.Description("Feature key grouping commits into one thread (empty starts a fresh thread)"),
		),
		mcp.WithString("commit",
			mcp.Description("Commit or version id appended to the thread"),
		),
		mcp.WithString("diff_path",
			mcp.Description("Path to a diff file to index before asking"),
		),
	)
}

// Handle processes the ask_diff tool call.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	role := req.GetString("role", "")
	prompt := req.GetString("prompt", "")
	if role == "" {
		return mcp.NewToolResultError("'role' is required"), nil
	}
	if prompt == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	res, err := t.manager.Ask(ctx, session.AskRequest{
		Role:         role,
		Feature:      req.GetString("feature", ""),
		Commit:       req.GetString("commit", ""),
		Prompt:       prompt,
		DocumentPath: req.GetString("diff_path", ""),
	})
	if err != nil && res.Turn.TurnID == "" {
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(res.Turn.Output)
	fmt.Fprintf(&b, "\n\n---\nthread: %s\nturn: %s", res.Turn.Handle, res.Turn.TurnID)
	if res.Turn.Chained {
		b.WriteString(" (chained)")
	}
	if err != nil {
		fmt.Fprintf(&b, "\nwarning: %v", err)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ListThreadsTool handles the list_threads MCP tool.
type ListThreadsTool struct {
	manager *session.Manager
	mu      *sync.Mutex
}

// Definition returns the MCP tool definition for list_threads.
func (t *ListThreadsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_threads",
		mcp.WithDescription("List saved conversation threads with their feature and commits."),
	)
}

type threadSummary struct {
	Handle  string   `json:"handle"`
	Feature string   `json:"feature"`
	Commits []string `json:"commits"`
	Chained bool     `json:"chained"`
}

// Handle processes the list_threads tool call.
func (t *ListThreadsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	store := t.manager.Store()
	threads := make([]threadSummary, 0, store.Len())
	for _, h := range store.Handles() {
		rec, _ := store.Conversation(h)
		threads = append(threads, threadSummary{
			Handle:  h,
			Feature: rec.Feature,
			Commits: rec.Commits,
			Chained: rec.LastTurnReference != "",
		})
	}
	return jsonResult(threads)
}

// ShowThreadTool handles the show_thread MCP tool.
type ShowThreadTool struct {
	manager *session.Manager
	history *transcript.Store
	mu      *sync.Mutex
}

// Definition returns the MCP tool definition for show_thread.
func (t *ShowThreadTool) Definition() mcp.Tool {
	return mcp.NewTool("show_thread",
		mcp.WithDescription("Show one thread's state and, when the transcript is enabled, its recent turns."),
		mcp.WithString("handle",
			mcp.Description("Thread handle (from list_threads)"),
		),
		mcp.WithString("feature",
			mcp.Description("Look the thread up by feature instead of handle"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of turns to include (default 10)"),
		),
	)
}

type threadDetail struct {
	threadSummary
	LastTurnReference string             `json:"lastTurnReference,omitempty"`
	Turns             []transcript.Entry `json:"turns,omitempty"`
}

// Handle processes the show_thread tool call.
func (t *ShowThreadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	handle := req.GetString("handle", "")
	feature := req.GetString("feature", "")
	limit := intArg(req, "limit", 10)

	t.mu.Lock()
	defer t.mu.Unlock()

	store := t.manager.Store()
	if handle == "" && feature != "" {
		h, ok := store.HandleForFeature(feature)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no thread for feature %q", feature)), nil
		}
		handle = h
	}
	if handle == "" {
		return mcp.NewToolResultError("'handle' or 'feature' is required"), nil
	}
	rec, ok := store.Conversation(handle)
	if !ok {
		return mcp.NewToolResultError((&session.UnknownHandleError{Handle: handle}).Error()), nil
	}

	detail := threadDetail{
		threadSummary: threadSummary{
			Handle:  handle,
			Feature: rec.Feature,
			Commits: rec.Commits,
			Chained: rec.LastTurnReference != "",
		},
		LastTurnReference: rec.LastTurnReference,
	}
	if t.history != nil {
		turns, err := t.history.List(ctx, transcript.Filter{Handle: handle, Limit: limit})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading transcript: %v", err)), nil
		}
		detail.Turns = turns
	}
	return jsonResult(detail)
}

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
