package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWT
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// Connection strings with inline credentials.
	regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Policy controls what Diff removes.
type Policy struct {
	// Secrets enables pattern-based secret scrubbing.
	Secrets bool
	// Paths are globs; matching files have their whole diff section replaced.
	Paths []string
}

// Enabled reports whether the policy would change anything.
func (p Policy) Enabled() bool {
	return p.Secrets || len(p.Paths) > 0
}

// Result describes what Diff changed.
type Result struct {
	Text string
	// Secrets is the number of pattern matches replaced.
	Secrets int
	// Files lists diff sections dropped by path policy.
	Files []string
}

// Changed reports whether anything was redacted.
func (r Result) Changed() bool {
	return r.Secrets > 0 || len(r.Files) > 0
}

// Secrets replaces detected secrets in text with [REDACTED] and returns the
// number of replacements.
func Secrets(text string) (string, int) {
	n := 0
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(string) string {
			n++
			return placeholder
		})
	}
	return result, n
}

// ShouldRedactPath checks if a file path matches any of the redaction path patterns.
func ShouldRedactPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		// "**/x" also matches x at any depth.
		cleanPattern := strings.TrimPrefix(pattern, "**/")
		if cleanPattern != pattern {
			base := filepath.Base(path)
			matched, err = filepath.Match(cleanPattern, base)
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

// Diff applies p to a unified diff. Each "diff --git" section is checked
// against the path globs on its own; text that is not a git diff is treated as
// one unnamed section.
func Diff(diff string, p Policy) Result {
	res := Result{Text: diff}
	if !p.Enabled() {
		return res
	}

	var b strings.Builder
	for _, sec := range splitSections(diff) {
		if sec.path != "" && ShouldRedactPath(sec.path, p.Paths) {
			b.WriteString(sec.header)
			b.WriteString(placeholder + " (file content redacted by path policy)\n")
			res.Files = append(res.Files, sec.path)
			continue
		}
		body := sec.header + sec.body
		if p.Secrets {
			var n int
			body, n = Secrets(body)
			res.Secrets += n
		}
		b.WriteString(body)
	}
	res.Text = b.String()
	return res
}

type section struct {
	path   string
	header string // the "diff --git" line including its newline
	body   string
}

func splitSections(diff string) []section {
	var out []section
	cur := section{}
	lines := strings.SplitAfter(diff, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			if cur.header != "" || cur.body != "" {
				out = append(out, cur)
			}
			cur = section{path: pathFromHeader(line), header: line}
			continue
		}
		cur.body += line
	}
	if cur.header != "" || cur.body != "" {
		out = append(out, cur)
	}
	return out
}

// pathFromHeader returns the post-image path of a "diff --git a/x b/y" line.
func pathFromHeader(line string) string {
	line = strings.TrimRight(line, "\r\n")
	rest := strings.TrimPrefix(line, "diff --git ")
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	return ""
}
