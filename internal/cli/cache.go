package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the upload cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all cached uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		c, err := cache.New(true, cfg.UploadCache.Dir, cfg.UploadCache.TTLSeconds)
		if err != nil {
			return fail(cmd, errors.Wrap(err, "opening cache"))
		}
		n, err := c.Clear()
		if err != nil {
			return fail(cmd, errors.Wrap(err, "clearing cache"))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d entries).\n", n)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		c, err := cache.New(cfg.UploadCache.Enabled, cfg.UploadCache.Dir, cfg.UploadCache.TTLSeconds)
		if err != nil {
			return fail(cmd, errors.Wrap(err, "opening cache"))
		}
		if !c.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
			return nil
		}
		stats, err := c.GetStats()
		if err != nil {
			return fail(cmd, errors.Wrap(err, "reading cache stats"))
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
