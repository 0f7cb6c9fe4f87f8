package commands

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/mcp"
	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/flowchart"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve flowchart tools over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout exposing the
flowchart and list_functions tools. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger := newLogger(cmd, conf)

		gen := flowchart.NewGenerator(cache.New(cache.Options{MaxSize: conf.CacheSize}))
		s := mcp.NewServer(RootCmd.Version, mcp.NewHandlerSet(conf, gen))

		logger.Info("starting MCP server", "tools", "flowchart,list_functions")
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(mcpCmd)
}
