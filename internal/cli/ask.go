package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/config"
	"github.com/dshills/diffchat/internal/gitctx"
	"github.com/dshills/diffchat/internal/output"
	"github.com/dshills/diffchat/internal/session"
)

// Shared flags
var (
	flagPrompt       string
	flagRole         string
	flagFeature      string
	flagVersion      string
	flagDiff         string
	flagGit          string
	flagGitRange     string
	flagStaged       bool
	flagExclude      string
	flagContextLines int
	flagModel        string
	flagFormat       string
	flagOut          string
	flagNoRedact     bool
)

func addDiffFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDiff, "diff", "", "Path to a diff file (name it after the commit sha)")
	cmd.Flags().StringVar(&flagGit, "git", "", "Index the diff of this git commit")
	cmd.Flags().StringVar(&flagGitRange, "git-range", "", "Index the diff of a revision range (A..B)")
	cmd.Flags().BoolVar(&flagStaged, "staged", false, "Index the staged changes")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs from git diffs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in git diffs")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
}

func addVersionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagVersion, "version", "", "Version or commit id appended to the feature's thread")
	cmd.Flags().StringVar(&flagVersion, "commit", "", "Alias for --version")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
}

// document is a diff ready for indexing.
type document struct {
	path string
	// commit is derived from git when --version is not given.
	commit  string
	cleanup func()
}

// diffSourceCount reports how many of --diff, --git, --git-range and --staged are set.
func diffSourceCount() int {
	n := 0
	for _, set := range []bool{flagDiff != "", flagGit != "", flagGitRange != "", flagStaged} {
		if set {
			n++
		}
	}
	return n
}

func checkDiffSource(required bool) error {
	switch n := diffSourceCount(); {
	case n > 1:
		return errors.New("--diff, --git, --git-range and --staged are mutually exclusive")
	case n == 0 && required:
		return errors.New("one of --diff, --git, --git-range or --staged is required")
	}
	return nil
}

// resolveDocument materializes the selected diff source. A git diff is
// written to a temp file named after its short sha.
func resolveDocument() (document, error) {
	noop := func() {}
	if flagDiff != "" {
		return document{path: flagDiff, cleanup: noop}, nil
	}
	opts := gitctx.DiffOptions{
		ContextLines: flagContextLines,
		Exclude:      splitComma(flagExclude),
	}
	var (
		diff gitctx.DiffResult
		err  error
	)
	switch {
	case flagGit != "":
		diff, err = gitctx.Commit(flagGit, opts)
	case flagGitRange != "":
		diff, err = gitctx.Range(flagGitRange, true, opts)
	case flagStaged:
		diff, err = gitctx.Staged(opts)
	default:
		return document{cleanup: noop}, nil
	}
	if err != nil {
		return document{}, err
	}
	path, cleanup, err := gitctx.WriteTemp(diff)
	if err != nil {
		return document{}, err
	}
	doc := document{path: path, cleanup: cleanup}
	if diff.Mode == "commit" {
		doc.commit = diff.Rev
	}
	return doc, nil
}

// prepare loads config, applies --no-redact and builds the app.
func prepare(cmd *cobra.Command) (*app, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyNoRedact(cmd, &cfg)
	return newApp(cfg)
}

func applyNoRedact(cmd *cobra.Command, cfg *config.Config) {
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		cfg.Privacy.RedactPaths = nil
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: secret redaction is disabled")
	}
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Index a diff and ask a role about it within the feature's thread",
	Long: "Upload the diff, find or start the feature's conversation, send the prompt as the given\n" +
		"role and print the question and answer. Without --feature every call starts a new thread.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkDiffSource(false); err != nil {
			return err
		}
		a, err := prepare(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		doc, err := resolveDocument()
		if err != nil {
			return fail(cmd, err)
		}
		defer doc.cleanup()

		commit := flagVersion
		if commit == "" {
			commit = doc.commit
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := a.manager.Ask(ctx, session.AskRequest{
			Role:         flagRole,
			Feature:      flagFeature,
			Commit:       commit,
			Prompt:       flagPrompt,
			DocumentPath: doc.path,
		})
		if err != nil && res.Turn.TurnID == "" {
			return fail(cmd, err)
		}
		if werr := output.WriteTurn(cmd.OutOrStdout(), res.Turn, a.cfg.Format, flagOut); werr != nil {
			return fail(cmd, errors.Wrap(werr, "writing output"))
		}
		if err != nil {
			// The answer was printed but state or transcript could not be written.
			return fail(cmd, err)
		}
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Upload and index a diff without asking anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkDiffSource(true); err != nil {
			return err
		}
		a, err := prepare(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		doc, err := resolveDocument()
		if err != nil {
			return fail(cmd, err)
		}
		defer doc.cleanup()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := a.manager.Index(ctx, doc.path)
		if err != nil {
			return fail(cmd, err)
		}
		if err := output.WriteIndex(cmd.OutOrStdout(), res, a.cfg.Format, flagOut); err != nil {
			return fail(cmd, errors.Wrap(err, "writing output"))
		}
		return nil
	},
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Index a diff and append its commit to the feature's thread, without a model turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkDiffSource(false); err != nil {
			return err
		}
		a, err := prepare(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		doc, err := resolveDocument()
		if err != nil {
			return fail(cmd, err)
		}
		defer doc.cleanup()

		commit := flagVersion
		if commit == "" {
			commit = doc.commit
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := a.manager.Track(ctx, flagFeature, commit, doc.path)
		if err != nil {
			return fail(cmd, err)
		}
		writeTrack(cmd.OutOrStdout(), flagFeature, commit, res)
		return nil
	},
}

func writeTrack(w io.Writer, feature, commit string, res session.TrackResult) {
	if res.Index != nil {
		state := "indexed"
		if res.Index.Cached {
			state = "already indexed"
		}
		fmt.Fprintf(w, "%s %s as %s\n", state, res.Index.Filename, res.Index.FileID)
	}
	if commit == "" {
		fmt.Fprintf(w, "feature %s is thread %s\n", feature, res.Handle)
		return
	}
	fmt.Fprintf(w, "tracked %s on thread %s (feature %s)\n", commit, res.Handle, feature)
}

func init() {
	askCmd.Flags().StringVar(&flagPrompt, "prompt", "", "Question for the model")
	askCmd.Flags().StringVar(&flagRole, "role", "", "Role name from the config")
	askCmd.Flags().StringVar(&flagFeature, "feature", "", "Feature key (e.g. a Jira id) grouping commits into one thread")
	askCmd.Flags().StringVar(&flagModel, "model", "", "Model name (overrides config)")
	_ = askCmd.MarkFlagRequired("prompt")
	_ = askCmd.MarkFlagRequired("role")
	addVersionFlags(askCmd)
	addDiffFlags(askCmd)
	addOutputFlags(askCmd)

	addDiffFlags(indexCmd)
	addOutputFlags(indexCmd)

	trackCmd.Flags().StringVar(&flagFeature, "feature", "", "Feature key")
	_ = trackCmd.MarkFlagRequired("feature")
	addVersionFlags(trackCmd)
	addDiffFlags(trackCmd)
}
