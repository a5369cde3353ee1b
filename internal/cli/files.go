package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/providers"
)

var flagYes bool

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage diff files stored with OpenAI",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every file stored with OpenAI",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		files, err := a.manager.Files(ctx)
		if err != nil {
			return fail(cmd, err)
		}

		out := cmd.OutOrStdout()
		if a.cfg.Format == "json" {
			if files == nil {
				files = []providers.File{}
			}
			return writeJSON(out, files)
		}
		if len(files) == 0 {
			fmt.Fprintln(out, "No files stored.")
			return nil
		}
		writeFiles(out, "", files)
		return nil
	},
}

var filesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every file stored with OpenAI and empty the upload cache",
	Long: "Delete every file stored with OpenAI, including files other tools uploaded with the same key,\n" +
		"then empty the upload cache. Without --yes the files are only listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		if !flagYes {
			files, err := a.manager.Files(ctx)
			if err != nil {
				return fail(cmd, err)
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "No files stored.")
				return nil
			}
			writeFiles(out, "would delete ", files)
			fmt.Fprintf(out, "%d files would be deleted. Re-run with --yes to delete them.\n", len(files))
			return nil
		}

		res, err := a.manager.ClearFiles(ctx)
		writeFiles(out, "deleted ", res.Deleted)
		if err != nil {
			return fail(cmd, err)
		}
		fmt.Fprintf(out, "Deleted %d files, cleared %d cache entries.\n", len(res.Deleted), res.CacheEntries)
		return nil
	},
}

func writeFiles(w io.Writer, prefix string, files []providers.File) {
	for _, f := range files {
		fmt.Fprintf(w, "%s%s  %s  (%d bytes)\n", prefix, f.ID, f.Filename, f.Bytes)
	}
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesClearCmd)

	filesListCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json)")
	filesClearCmd.Flags().BoolVar(&flagYes, "yes", false, "Actually delete the files")
}
