package output

import (
	"io"
	"strings"
	"time"

	"github.com/dshills/diffchat/internal/session"
)

// TextWriter prints the question and answer blocks.
type TextWriter struct{}

func (t *TextWriter) WriteTurn(w io.Writer, r session.TurnResult) error {
	ew := &errWriter{w: w}
	ew.printf("<<< QUESTION:\n%s\n\n\n", r.Prompt)
	ew.printf(">>> ANSWER:\n%s\n\n\n", r.Output)
	ew.println(strings.Repeat("─", 60))

	chain := "new context"
	if r.ContinuedFrom != "" {
		chain = "continued from " + r.ContinuedFrom
	}
	ew.printf("thread %s | role %s | feature %s | commits [%s]\n",
		r.Handle, r.Role, featureLabel(r.Feature), strings.Join(r.Commits, ", "))
	ew.printf("turn %s (%s) in %s\n", r.TurnID, chain, r.Duration.Round(time.Millisecond))
	return ew.err
}

func (t *TextWriter) WriteIndex(w io.Writer, r session.IndexResult) error {
	ew := &errWriter{w: w}
	state := "indexed"
	if r.Cached {
		state = "already indexed"
	}
	ew.printf("%s %s as %s in collection %s\n", state, r.Filename, r.FileID, r.CollectionID)
	ew.printf("  %d bytes", r.Bytes)
	if r.Tokens > 0 {
		ew.printf(", %d tokens", r.Tokens)
	}
	ew.println("")
	if r.Redacted.Secrets > 0 {
		ew.printf("  redacted %d secret(s)\n", r.Redacted.Secrets)
	}
	for _, f := range r.Redacted.Files {
		ew.printf("  redacted file %s\n", f)
	}
	return ew.err
}
