package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/state"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Validate configuration, state and OpenAI credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()

		cfg, path, err := loadConfig()
		fmt.Fprintf(out, "Checking config %s...\n", path)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fmt.Fprintf(errOut, "FAIL: %v\n", err)
			exitCode = exitFor(err)
			return nil
		}
		fmt.Fprintf(out, "OK: %d role(s), model %s, vector store %q\n", len(cfg.Roles), cfg.Model, cfg.VectorStoreName)

		fmt.Fprintf(out, "Checking state %s...\n", cfg.StatePath)
		store, err := state.Open(cfg.StatePath)
		if err != nil {
			fmt.Fprintf(errOut, "FAIL: %v\n", err)
			exitCode = exitFor(err)
			return nil
		}
		cached := "not cached"
		if id := store.CollectionID(); id != "" {
			cached = "cached as " + id
		}
		fmt.Fprintf(out, "OK: %d thread(s), collection %s\n", store.Len(), cached)

		client, err := newClient(cfg)
		if err != nil {
			fmt.Fprintf(errOut, "FAIL: %v\n", err)
			exitCode = ExitConfigError
			return nil
		}
		fmt.Fprintf(out, "Checking %s...\n", client.Name())

		ctx, cancel := commandContext(cmd)
		defer cancel()

		found, err := client.ListCollections(ctx, cfg.VectorStoreName, 100)
		if err != nil {
			fmt.Fprintf(errOut, "FAIL: %v\n", err)
			exitCode = exitFor(err)
			return nil
		}
		if len(found) == 0 {
			fmt.Fprintf(out, "OK: credentials accepted; vector store %q will be created on first use\n", cfg.VectorStoreName)
			return nil
		}
		fmt.Fprintf(out, "OK: vector store %q exists (%s)\n", cfg.VectorStoreName, found[0].ID)
		if len(found) > 1 {
			fmt.Fprintf(errOut, "WARNING: %d vector stores share the name %q; the first one is used\n", len(found), cfg.VectorStoreName)
		}
		return nil
	},
}
