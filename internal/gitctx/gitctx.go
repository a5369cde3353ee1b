package gitctx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	// Dir is the working directory for git; empty means the current one.
	Dir          string
	ContextLines int
	Exclude      []string
}

// DiffResult holds the collected diff and metadata.
type DiffResult struct {
	Diff  string
	Files []string
	Mode  string // "commit", "range" or "staged"
	// Rev is the short sha for a commit, the range for a range, empty otherwise.
	Rev  string
	Repo RepoMeta
}

// Label names the diff for upload: the short sha, a sanitized range, or
// "staged-<short head>".
func (r DiffResult) Label() string {
	switch r.Mode {
	case "commit":
		return r.Rev
	case "range":
		return sanitize(r.Rev)
	default:
		if r.Repo.Head != "" {
			return "staged-" + shorten(r.Repo.Head)
		}
		return "staged"
	}
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// GetRepoMeta collects repository metadata from git.
func GetRepoMeta(dir string) (RepoMeta, error) {
	root, err := gitOutput(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, errors.Wrap(err, "not a git repository")
	}
	head, err := gitOutput(dir, "rev-parse", "HEAD")
	if err != nil {
		head = "" // no commits yet
	}
	branch, err := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// ShortSHA resolves rev to an abbreviated commit id.
func ShortSHA(dir, rev string) (string, error) {
	out, err := gitOutput(dir, "rev-parse", "--short", rev+"^{commit}")
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", rev)
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the repository's .git directory.
func GitDir(dir string) (string, error) {
	out, err := gitOutput(dir, "rev-parse", "--git-dir")
	if err != nil {
		return "", errors.New("not a git repository (git rev-parse --git-dir failed)")
	}
	gitDir := strings.TrimSpace(out)
	if !filepath.IsAbs(gitDir) && dir != "" {
		gitDir = filepath.Join(dir, gitDir)
	}
	return gitDir, nil
}

// Staged returns the diff of index vs HEAD.
func Staged(opts DiffOptions) (DiffResult, error) {
	args := buildDiffArgs(opts)
	diff, err := gitOutput(opts.Dir, append([]string{"diff", "--cached"}, args...)...)
	if err != nil {
		return DiffResult{}, errors.Wrap(err, "git diff --cached")
	}
	return buildResult(diff, "staged", "", opts)
}

// Commit returns the diff a single commit introduced.
func Commit(rev string, opts DiffOptions) (DiffResult, error) {
	short, err := ShortSHA(opts.Dir, rev)
	if err != nil {
		return DiffResult{}, err
	}
	args := buildDiffArgs(opts)
	diff, err := gitOutput(opts.Dir, append([]string{"diff", short + "~1", short}, args...)...)
	if err != nil {
		// Root commit has no parent.
		showArgs := append([]string{"show", "--format=", short}, args...)
		diff, err = gitOutput(opts.Dir, showArgs...)
		if err != nil {
			return DiffResult{}, errors.Wrapf(err, "git show %s", short)
		}
	}
	return buildResult(diff, "commit", short, opts)
}

// Range returns the combined diff for a revision range. With mergeBase, a..b
// is compared from the merge base (a...b).
func Range(revRange string, mergeBase bool, opts DiffOptions) (DiffResult, error) {
	if !strings.Contains(revRange, "..") {
		return DiffResult{}, errors.Errorf("invalid range %q (want A..B)", revRange)
	}
	args := buildDiffArgs(opts)
	diffRange := revRange
	if mergeBase && !strings.Contains(revRange, "...") {
		diffRange = strings.Replace(revRange, "..", "...", 1)
	}
	diff, err := gitOutput(opts.Dir, append([]string{"diff", diffRange}, args...)...)
	if err != nil {
		return DiffResult{}, errors.Wrapf(err, "git diff %s", revRange)
	}
	return buildResult(diff, "range", revRange, opts)
}

// WriteTemp writes the diff to <label>.diff in a fresh temporary directory.
// The caller must call cleanup when done.
func WriteTemp(r DiffResult) (path string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "diffchat-*")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating temp dir")
	}
	cleanup = func() { _ = os.RemoveAll(dir) }
	path = filepath.Join(dir, r.Label()+".diff")
	if err := os.WriteFile(path, []byte(r.Diff), 0o600); err != nil {
		cleanup()
		return "", nil, errors.Wrap(err, "writing diff")
	}
	return path, cleanup, nil
}

func buildDiffArgs(opts DiffOptions) []string {
	var args []string
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	return append(args, "--")
}

func buildResult(diff, mode, rev string, opts DiffOptions) (DiffResult, error) {
	meta, err := GetRepoMeta(opts.Dir)
	if err != nil {
		meta = RepoMeta{}
	}

	files := extractFiles(diff)
	if len(opts.Exclude) > 0 {
		diff = filterExcluded(diff, opts.Exclude)
		files = filterFileList(files, opts.Exclude)
	}
	if strings.TrimSpace(diff) == "" {
		return DiffResult{}, errors.Errorf("%s diff %s is empty", mode, rev)
	}

	return DiffResult{
		Diff:  diff,
		Files: files,
		Mode:  mode,
		Rev:   rev,
		Repo:  meta,
	}, nil
}

func extractFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			f := strings.TrimPrefix(line, "+++ b/")
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

func filterExcluded(diff string, excludes []string) string {
	var kept []string
	for _, section := range splitDiffSections(diff) {
		path := extractPathFromSection(section)
		if path == "" || !MatchesAny(path, excludes) {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "")
}

func splitDiffSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func extractPathFromSection(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	return ""
}

func filterFileList(files []string, excludes []string) []string {
	var result []string
	for _, f := range files {
		if !MatchesAny(f, excludes) {
			result = append(result, f)
		}
	}
	return result
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		clean := strings.TrimPrefix(pattern, "**/")
		if clean != pattern {
			matched, err = filepath.Match(clean, filepath.Base(path))
			if err == nil && matched {
				return true
			}
			matched, err = filepath.Match(clean, path)
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

func shorten(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), errors.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
