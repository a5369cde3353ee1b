// Package output renders diffchat results.
//
// Supported formats:
//   - text: the question and answer blocks followed by a short thread summary.
//   - json: the full turn or index result, durations in milliseconds.
//   - markdown: a small report, styled with glamour when written to a terminal.
//
// Use [GetWriter] to obtain a [Writer] by format name, or [WriteTurn] to
// write straight to a file or stdout.
package output
