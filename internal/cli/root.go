package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
	ExitConfigError  = 5
	ExitStateError   = 6
)

// Global flags
var (
	flagConfig    string
	flagState     string
	flagLogLevel  string
	flagLogFormat string
	flagLogFile   string
	flagTimeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "diffchat",
	Short: "Feature-scoped LLM conversations about code diffs",
	Long: "diffchat indexes diffs into an OpenAI vector store and keeps one model conversation per\n" +
		"feature, so questions about later commits continue the same thread.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(flagLogLevel, flagLogFormat, flagLogFile)
	},
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	err := rootCmd.Execute()
	closeLogger()
	if err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print diffchat version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "diffchat version %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: $DIFFCHAT_CONFIG, ./config.json, or the user config dir)")
	pf.StringVar(&flagState, "state", "", "State file path (overrides state_path)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format on stderr (text, json)")
	pf.StringVar(&flagLogFile, "log-file", "", "Also append JSON logs to this file")
	pf.DurationVar(&flagTimeout, "timeout", 10*time.Minute, "Overall deadline for calls to OpenAI (0 disables)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
