package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/diffchat/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve diffchat tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return fail(cmd, err)
		}
		a, err := newApp(cfg)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.close()

		s := mcpserver.New(version, a.manager, a.history)
		if err := mcpserver.Serve(s); err != nil {
			return fail(cmd, err)
		}
		return nil
	},
}
