package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/dshills/diffchat/internal/session"
)

// Writer renders command results in a specific format.
type Writer interface {
	WriteTurn(w io.Writer, r session.TurnResult) error
	WriteIndex(w io.Writer, r session.IndexResult) error
}

// Formats lists the accepted --format values.
var Formats = []string{"text", "json", "markdown"}

// GetWriter returns a writer for the specified format. Markdown is styled for
// the terminal only when styled is true.
func GetWriter(format string, styled bool) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{Styled: styled}, nil
	default:
		return nil, errors.Errorf("unsupported output format: %s (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Open returns the destination for outPath: a new file, or stdout when
// outPath is empty or "-". The second return value reports whether the
// destination is a terminal.
func Open(outPath string, stdout io.Writer) (io.WriteCloser, bool, error) {
	if outPath == "" || outPath == "-" {
		f, ok := stdout.(*os.File)
		return nopCloser{stdout}, ok && IsTerminal(f), nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, false, errors.Wrap(err, "creating output file")
	}
	return f, false, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// WriteTurn writes r to outPath (or stdout) in format.
func WriteTurn(stdout io.Writer, r session.TurnResult, format, outPath string) error {
	return write(stdout, format, outPath, func(w Writer, dst io.Writer) error {
		return w.WriteTurn(dst, r)
	})
}

// WriteIndex writes r to outPath (or stdout) in format.
func WriteIndex(stdout io.Writer, r session.IndexResult, format, outPath string) error {
	return write(stdout, format, outPath, func(w Writer, dst io.Writer) error {
		return w.WriteIndex(dst, r)
	})
}

func write(stdout io.Writer, format, outPath string, fn func(Writer, io.Writer) error) error {
	// Reject a bad format before creating the file.
	if _, err := GetWriter(format, false); err != nil {
		return err
	}
	dst, tty, err := Open(outPath, stdout)
	if err != nil {
		return err
	}
	writer, _ := GetWriter(format, tty)
	if err := fn(writer, dst); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func featureLabel(feature string) string {
	if feature == "" {
		return "(untracked)"
	}
	return feature
}
