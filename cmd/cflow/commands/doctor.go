package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check grammars, configuration and daemon",
	Long: `Verifies that every language grammar loads and produces a flowchart,
that the effective configuration is valid and whether a daemon answers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, configPath, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cmd.Context(), conf, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		healthcheck.Display(os.Stdout, result)

		if result.HasErrors() {
			return fmt.Errorf("health check failed: one or more checks reported errors")
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
