package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"

	"github.com/dshills/diffchat/internal/session"
)

// MarkdownWriter outputs markdown, rendered with glamour when Styled.
type MarkdownWriter struct {
	Styled bool
	// Width wraps styled output. Zero means 100 columns.
	Width int
}

func (m *MarkdownWriter) WriteTurn(w io.Writer, r session.TurnResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s on %s\n\n", r.Role, featureLabel(r.Feature))
	fmt.Fprintf(&b, "| Thread | Commits | Turn |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| `%s` | %s | `%s` |\n\n", r.Handle, mdCommits(r.Commits), r.TurnID)
	b.WriteString("### Question\n\n")
	b.WriteString(quote(r.Prompt))
	b.WriteString("\n\n### Answer\n\n")
	b.WriteString(strings.TrimSpace(r.Output))
	b.WriteString("\n")
	if r.ContinuedFrom != "" {
		fmt.Fprintf(&b, "\n_Continued from `%s`._\n", r.ContinuedFrom)
	}
	return m.emit(w, b.String())
}

func (m *MarkdownWriter) WriteIndex(w io.Writer, r session.IndexResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## Indexed `%s`\n\n", r.Filename)
	fmt.Fprintf(&b, "- File: `%s`\n- Collection: `%s`\n- Size: %d bytes", r.FileID, r.CollectionID, r.Bytes)
	if r.Tokens > 0 {
		fmt.Fprintf(&b, ", %d tokens", r.Tokens)
	}
	b.WriteString("\n")
	if r.Cached {
		b.WriteString("- Already present, upload skipped\n")
	}
	if r.Redacted.Changed() {
		fmt.Fprintf(&b, "- Redacted: %d secret(s), %d file(s)\n", r.Redacted.Secrets, len(r.Redacted.Files))
	}
	return m.emit(w, b.String())
}

func (m *MarkdownWriter) emit(w io.Writer, md string) error {
	if m.Styled {
		width := m.Width
		if width <= 0 {
			width = 100
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return errors.Wrap(err, "creating markdown renderer")
		}
		styled, err := r.Render(md)
		if err != nil {
			return errors.Wrap(err, "rendering markdown")
		}
		md = styled
	}
	_, err := io.WriteString(w, md)
	return err
}

func mdCommits(commits []string) string {
	if len(commits) == 0 {
		return "none"
	}
	quoted := make([]string, len(commits))
	for i, c := range commits {
		quoted[i] = "`" + c + "`"
	}
	return strings.Join(quoted, ", ")
}

func quote(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
