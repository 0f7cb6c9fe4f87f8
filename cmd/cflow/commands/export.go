package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/export"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/render"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [paths or globs...]",
	Short: "Write a flowchart file for every function",
	Long: `Renders every function found in the given files, directories or globs
and writes one file per function into --out.

Examples:
  cflow export src --out charts
  cflow export "lib/**/*.ts" --out charts --format dot
  cflow export src --out charts --changed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		conf, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		outDir, _ := cmd.Flags().GetString("out")
		formatName, _ := cmd.Flags().GetString("format")
		format, err := render.ParseFormat(formatName)
		if err != nil {
			return err
		}
		direction := conf.Direction
		if cmd.Flags().Changed("direction") {
			direction, _ = cmd.Flags().GetString("direction")
		}

		files, err := expandFiles(conf, args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No source files found")
			return nil
		}

		opts := export.Options{
			OutDir:           outDir,
			Format:           format,
			Render:           render.Options{Direction: direction},
			Build:            conf.BuildOptions(),
			MaxFunctionBytes: conf.MaxFunctionBytes,
		}
		opts.Incremental, _ = cmd.Flags().GetBool("changed")
		if log.IsTerminal(os.Stderr) {
			opts.Progress = os.Stderr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := export.Run(ctx, files, opts)
		if err != nil {
			return err
		}

		for path, ferr := range result.Failed {
			fmt.Fprintf(os.Stderr, "skipped %s: %v\n", path, ferr)
		}
		fmt.Printf("Wrote %d flowcharts to %s", len(result.Written), outDir)
		if result.Skipped > 0 {
			fmt.Printf(" (%d functions skipped)", result.Skipped)
		}
		if result.Unchanged > 0 {
			fmt.Printf(", %d files unchanged", result.Unchanged)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "flowcharts", "Output directory")
	exportCmd.Flags().String("format", "mermaid", "Output format: mermaid, dot, json or text")
	exportCmd.Flags().Bool("changed", false, "Only export files changed since the last export into --out")
	exportCmd.Flags().String("direction", "", "Layout direction: TD, LR, BT or RL (default from config)")
	RootCmd.AddCommand(exportCmd)
}
