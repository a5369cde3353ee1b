package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/config"
	"github.com/dshills/diffchat/internal/session"
	"github.com/dshills/diffchat/internal/state"
	"github.com/dshills/diffchat/internal/transcript"
)

var flagLimit int

type threadView struct {
	Handle            string   `json:"handle"`
	Feature           string   `json:"feature"`
	Commits           []string `json:"commits"`
	LastTurnReference string   `json:"lastTurnReference,omitempty"`
}

func viewOf(handle string, rec state.Record) threadView {
	commits := rec.Commits
	if commits == nil {
		commits = []string{}
	}
	return threadView{Handle: handle, Feature: rec.Feature, Commits: commits, LastTurnReference: rec.LastTurnReference}
}

// openState reads the state file without validating credentials; inspection
// commands never talk to OpenAI.
func openState() (config.Config, *state.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, store, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect saved conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads with their feature and commits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openState()
		if err != nil {
			return fail(cmd, err)
		}
		views := make([]threadView, 0, store.Len())
		for _, h := range store.Handles() {
			rec, _ := store.Conversation(h)
			views = append(views, viewOf(h, rec))
		}

		out := cmd.OutOrStdout()
		if cfg.Format == "json" {
			return writeJSON(out, views)
		}
		if len(views) == 0 {
			fmt.Fprintf(out, "No threads in %s.\n", store.Path())
			return nil
		}
		for _, v := range views {
			feature := v.Feature
			if feature == "" {
				feature = "(untracked)"
			}
			chained := ""
			if v.LastTurnReference != "" {
				chained = "  chained"
			}
			fmt.Fprintf(out, "%s  %-16s  [%s]%s\n", v.Handle, feature, strings.Join(v.Commits, ", "), chained)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <handle>",
	Short: "Show one thread and its recorded turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openState()
		if err != nil {
			return fail(cmd, err)
		}
		rec, ok := store.Conversation(args[0])
		if !ok {
			return fail(cmd, &session.UnknownHandleError{Handle: args[0]})
		}
		view := viewOf(args[0], rec)

		entries, err := readHistory(cmd, cfg, transcript.Filter{Handle: args[0], Limit: flagLimit})
		if err != nil {
			return fail(cmd, err)
		}

		out := cmd.OutOrStdout()
		if cfg.Format == "json" {
			return writeJSON(out, struct {
				threadView
				Turns []transcript.Entry `json:"turns"`
			}{view, entries})
		}
		feature := view.Feature
		if feature == "" {
			feature = "(untracked)"
		}
		fmt.Fprintf(out, "thread:   %s\nfeature:  %s\ncommits:  %s\n", view.Handle, feature, strings.Join(view.Commits, ", "))
		if view.LastTurnReference != "" {
			fmt.Fprintf(out, "continues from: %s\n", view.LastTurnReference)
		}
		if len(entries) > 0 {
			fmt.Fprintln(out)
			writeEntries(out, entries)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [handle]",
	Short: "Print recorded turns from the transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		if !cfg.Transcript.Enabled {
			return fail(cmd, &config.Error{Field: "transcript.enabled", Reason: "the transcript is disabled"})
		}
		filter := transcript.Filter{Feature: flagFeature, Limit: flagLimit}
		if len(args) == 1 {
			filter.Handle = args[0]
		}
		entries, err := readHistory(cmd, cfg, filter)
		if err != nil {
			return fail(cmd, err)
		}

		out := cmd.OutOrStdout()
		if cfg.Format == "json" {
			if entries == nil {
				entries = []transcript.Entry{}
			}
			return writeJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No turns recorded.")
			return nil
		}
		writeEntries(out, entries)
		return nil
	},
}

// readHistory returns transcript entries, or none when the transcript is
// disabled or has not been created yet.
func readHistory(cmd *cobra.Command, cfg config.Config, f transcript.Filter) ([]transcript.Entry, error) {
	if !cfg.Transcript.Enabled {
		return nil, nil
	}
	path := cfg.TranscriptPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	h, err := transcript.Open(path)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	ctx, cancel := commandContext(cmd)
	defer cancel()
	return h.List(ctx, f)
}

func writeEntries(w io.Writer, entries []transcript.Entry) {
	for _, e := range entries {
		chain := "new context"
		if e.ContinuedFrom != "" {
			chain = "continues " + e.ContinuedFrom
		}
		fmt.Fprintf(w, "=== %s  %s  %s  turn %s (%s)\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Handle, e.Role, e.TurnID, chain)
		fmt.Fprintf(w, "<<< QUESTION:\n%s\n\n>>> ANSWER:\n%s\n\n", e.Prompt, e.Output)
	}
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect configured roles",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		out := cmd.OutOrStdout()
		names := cfg.RoleNames()
		if len(names) == 0 {
			fmt.Fprintln(out, "No roles configured.")
			return nil
		}
		for _, name := range names {
			first, _, _ := strings.Cut(strings.TrimSpace(cfg.Roles[name]), "\n")
			fmt.Fprintf(out, "%-16s %s\n", name, first)
		}
		return nil
	},
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	rolesCmd.AddCommand(rolesListCmd)

	for _, cmd := range []*cobra.Command{threadsListCmd, threadsShowCmd, historyCmd} {
		cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	}
	threadsShowCmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of turns to show")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of turns to show")
	historyCmd.Flags().StringVar(&flagFeature, "feature", "", "Only turns for this feature")
}
