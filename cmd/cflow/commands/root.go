// Package commands provides the CLI commands for codeflow.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cflow",
	Short: "codeflow - Flowcharts for Python and TypeScript/JavaScript functions",
	Long: `codeflow turns a single function into a control-flow flowchart.

Commands:
  graph       Render the flowchart of one function
  functions   List functions that can be charted
  export      Write a flowchart file for every function
  init        Create a configuration file interactively
  doctor      Check grammars, configuration and daemon
  mcp         Serve flowchart tools over MCP (stdio)
  start       Start the background daemon
  stop        Stop the daemon
  status      Show daemon status

Use "cflow [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project, pyproject.toml and global config)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging")
}

// loadConfig loads the config named by --config or the layered default.
// The returned path is the file that was read, if any.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := config.LoadFromFile(path)
		return c, path, err
	}

	c, err := config.Load()
	if err != nil {
		return nil, "", err
	}

	path := ""
	if p := config.ProjectConfigPath("."); fileExists(p) {
		path = p
	} else if p := filepath.Join(config.Dir(), "config.yaml"); fileExists(p) {
		path = p
	}
	return c, path, nil
}

func newLogger(cmd *cobra.Command, c *config.Config) log.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := log.WarnLevel
	if env := os.Getenv("CFLOW_LOG_LEVEL"); env != "" {
		if l, err := log.ParseLevel(env); err == nil {
			level = l
		}
	}
	if verbose || c.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: c.LogJSON, Stderr: os.Stderr})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
