package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/diffchat/internal/redact"
	"github.com/dshills/diffchat/internal/session"
)

func sampleTurn() session.TurnResult {
	return session.TurnResult{
		Handle:        "thr_1",
		Role:          "TechLead",
		Feature:       "BASEL-1",
		Commits:       []string{"v1", "v2"},
		Prompt:        "What changed?",
		Output:        "The parser was rewritten.",
		TurnID:        "resp_2",
		ContinuedFrom: "resp_1",
		Chained:       true,
		Model:         "gpt-4o-mini",
		CollectionID:  "vs_1",
		StartedAt:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
	}
}

func sampleIndex() session.IndexResult {
	return session.IndexResult{
		Path:         "/tmp/abc123.diff",
		Filename:     "abc123.diff",
		FileID:       "file_9",
		CollectionID: "vs_1",
		Bytes:        120,
		Tokens:       30,
		Redacted:     redact.Result{Secrets: 2, Files: []string{".env"}},
		Duration:     250 * time.Millisecond,
	}
}

func TestGetWriter(t *testing.T) {
	for _, f := range []string{"text", "json", "markdown", "md", ""} {
		if _, err := GetWriter(f, false); err != nil {
			t.Errorf("GetWriter(%q) error: %v", f, err)
		}
	}
	if _, err := GetWriter("sarif", false); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestTextWriter_Turn(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).WriteTurn(&buf, sampleTurn()); err != nil {
		t.Fatalf("WriteTurn error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<<< QUESTION:\nWhat changed?\n\n\n>>> ANSWER:\nThe parser was rewritten.\n") {
		t.Errorf("unexpected Q/A block:\n%s", out)
	}
	for _, want := range []string{"thread thr_1", "feature BASEL-1", "commits [v1, v2]", "continued from resp_1", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriter_UntrackedNewContext(t *testing.T) {
	r := sampleTurn()
	r.Feature = ""
	r.ContinuedFrom = ""
	var buf bytes.Buffer
	if err := (&TextWriter{}).WriteTurn(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "feature (untracked)") || !strings.Contains(buf.String(), "new context") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestTextWriter_Index(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).WriteIndex(&buf, sampleIndex()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"indexed abc123.diff as file_9", "120 bytes, 30 tokens", "redacted 2 secret(s)", "redacted file .env"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONWriter_Turn(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).WriteTurn(&buf, sampleTurn()); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got["handle"] != "thr_1" || got["turnId"] != "resp_2" || got["chained"] != true {
		t.Errorf("unexpected fields: %v", got)
	}
	if got["durationMs"] != float64(1500) {
		t.Errorf("durationMs = %v, want 1500", got["durationMs"])
	}
	if _, ok := got["Duration"]; ok {
		t.Error("raw Duration should not be serialized")
	}
}

func TestJSONWriter_EmptyCommitsIsArray(t *testing.T) {
	r := sampleTurn()
	r.Commits = nil
	var buf bytes.Buffer
	if err := (&JSONWriter{}).WriteTurn(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"commits": []`) {
		t.Errorf("commits should be an empty array:\n%s", buf.String())
	}
}

func TestJSONWriter_Index(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).WriteIndex(&buf, sampleIndex()); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["fileId"] != "file_9" || got["redactedSecrets"] != float64(2) || got["durationMs"] != float64(250) {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestMarkdownWriter_Plain(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).WriteTurn(&buf, sampleTurn()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"## TechLead on BASEL-1", "`thr_1`", "`v1`, `v2`", "> What changed?", "### Answer", "_Continued from `resp_1`._"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestMarkdownWriter_Styled(t *testing.T) {
	var buf bytes.Buffer
	w := &MarkdownWriter{Styled: true, Width: 80}
	if err := w.WriteTurn(&buf, sampleTurn()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "parser was rewritten") {
		t.Errorf("styled output lost the answer:\n%s", out)
	}
}

func TestMarkdownWriter_Index(t *testing.T) {
	r := sampleIndex()
	r.Cached = true
	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).WriteIndex(&buf, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "upload skipped") {
		t.Errorf("unexpected markdown:\n%s", buf.String())
	}
}

func TestWriteTurn_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.json")
	var stdout bytes.Buffer
	if err := WriteTurn(&stdout, sampleTurn(), "json", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Errorf("file is not JSON:\n%s", data)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be untouched, got %q", stdout.String())
	}
}

func TestWriteIndex_ToStdout(t *testing.T) {
	var stdout bytes.Buffer
	if err := WriteIndex(&stdout, sampleIndex(), "text", ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "abc123.diff") {
		t.Errorf("stdout missing filename:\n%s", stdout.String())
	}
}

func TestWriteTurn_BadFormatCreatesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answer.txt")
	if err := WriteTurn(&bytes.Buffer{}, sampleTurn(), "sarif", path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be created for a bad format")
	}
}

func TestQuote(t *testing.T) {
	if got := quote("a\nb\n"); got != "> a\n> b" {
		t.Errorf("quote = %q", got)
	}
}
