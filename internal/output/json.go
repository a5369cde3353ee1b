package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/dshills/diffchat/internal/session"
)

// JSONWriter outputs results as indented JSON.
type JSONWriter struct{}

type turnJSON struct {
	session.TurnResult
	DurationMs int64 `json:"durationMs"`
}

type indexJSON struct {
	session.IndexResult
	DurationMs      int64    `json:"durationMs"`
	RedactedSecrets int      `json:"redactedSecrets,omitempty"`
	RedactedFiles   []string `json:"redactedFiles,omitempty"`
}

func (j *JSONWriter) WriteTurn(w io.Writer, r session.TurnResult) error {
	if r.Commits == nil {
		r.Commits = []string{}
	}
	return writeJSON(w, turnJSON{TurnResult: r, DurationMs: r.Duration.Milliseconds()})
}

func (j *JSONWriter) WriteIndex(w io.Writer, r session.IndexResult) error {
	return writeJSON(w, indexJSON{
		IndexResult:     r,
		DurationMs:      r.Duration.Milliseconds(),
		RedactedSecrets: r.Redacted.Secrets,
		RedactedFiles:   r.Redacted.Files,
	})
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling JSON")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "writing JSON")
	}
	_, err = fmt.Fprintln(w)
	return err
}
