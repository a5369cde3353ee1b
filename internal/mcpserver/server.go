// Package mcpserver exposes diff conversations as MCP tools over stdio.
//
// Tool handlers share one session.Manager; requests are served one at a
// time because the session store is not safe for concurrent use.
package mcpserver

import (
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/diffchat/internal/session"
	"github.com/dshills/diffchat/internal/transcript"
)

// New builds the MCP server. history may be nil when the transcript is off.
func New(version string, m *session.Manager, history *transcript.Store) *server.MCPServer {
	s := server.NewMCPServer(
		"diffchat",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	var mu sync.Mutex
	ask := &AskTool{manager: m, mu: &mu}
	s.AddTool(ask.Definition(), ask.Handle)

	list := &ListThreadsTool{manager: m, mu: &mu}
	s.AddTool(list.Definition(), list.Handle)

	show := &ShowThreadTool{manager: m, history: history, mu: &mu}
	s.AddTool(show.Definition(), show.Handle)

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `diffchat keeps one model conversation per feature across commits.
Use ask_diff to index a diff and ask a role-scoped question about it; asking again with the
same feature continues the same thread. list_threads and show_thread inspect saved threads.`
