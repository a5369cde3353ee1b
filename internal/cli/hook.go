package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> diffchat post-commit hook >>>"
	hookMarkerEnd   = "# <<< diffchat post-commit hook <<<"

	defaultHookPrompt = "Review this commit in the context of the feature so far."
)

var (
	hookFeature string
	hookRole    string
	hookPrompt  string
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git post-commit hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Index every new commit into the feature's thread",
	Long: "Install a post-commit hook section that runs `diffchat track --git HEAD --feature F`.\n" +
		"With --role the hook runs `diffchat ask` instead, so each commit also gets a review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			return fail(cmd, err)
		}

		section := generateHookScript(hookFeature, hookRole, hookPrompt)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			return fail(cmd, errors.Wrap(err, "reading hook file"))
		}

		var content string
		if os.IsNotExist(err) || len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceDiffchatSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			return fail(cmd, errors.Wrap(err, "creating hooks directory"))
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, errors.Wrap(err, "writing hook file"))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed diffchat post-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the diffchat post-commit hook section",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath()
		if err != nil {
			return fail(cmd, err)
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No post-commit hook found.")
				return nil
			}
			return fail(cmd, errors.Wrap(err, "reading hook file"))
		}

		content := removeDiffchatSection(string(existing))

		// If only shebang (and whitespace) remains, delete the file entirely
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				return fail(cmd, errors.Wrap(err, "removing hook file"))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed diffchat post-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, errors.Wrap(err, "writing hook file"))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed diffchat section from %s\n", hookPath)
		return nil
	},
}

func getHookPath() (string, error) {
	gitDir, err := gitctx.GitDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, "hooks", "post-commit"), nil
}

func generateHookScript(feature, role, prompt string) string {
	command := "diffchat track --git HEAD --feature " + shellQuote(feature)
	if role != "" {
		if prompt == "" {
			prompt = defaultHookPrompt
		}
		command = fmt.Sprintf("diffchat ask --git HEAD --feature %s --role %s --prompt %s",
			shellQuote(feature), shellQuote(role), shellQuote(prompt))
	}

	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	b.WriteString(command + "\n")
	b.WriteString("DIFFCHAT_EXIT=$?\n")
	b.WriteString("if [ $DIFFCHAT_EXIT -ne 0 ]; then\n")
	b.WriteString("  echo \"diffchat: could not record commit (exit $DIFFCHAT_EXIT)\" >&2\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func replaceDiffchatSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		// No existing diffchat section, append
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	// Trim leading newline from after to avoid double newlines
	after = strings.TrimPrefix(after, "\n")
	return before + section + after
}

func removeDiffchatSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	after = strings.TrimPrefix(after, "\n")

	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFeature, "feature", "", "Feature key every commit is tracked under")
	hookInstallCmd.Flags().StringVar(&hookRole, "role", "", "Also ask this role to review each commit")
	hookInstallCmd.Flags().StringVar(&hookPrompt, "prompt", "", "Prompt used with --role")
	_ = hookInstallCmd.MarkFlagRequired("feature")
}
