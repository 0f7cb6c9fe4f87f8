package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/scanner"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/lang"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	faintStyle = cellStyle.Faint(true)
)

// FileFunctions lists the functions found in one file.
type FileFunctions struct {
	File      string              `json:"file"`
	Language  string              `json:"language"`
	Functions []lang.FunctionInfo `json:"functions"`
	Error     string              `json:"error,omitempty"`
}

// functionsCmd represents the functions command
var functionsCmd = &cobra.Command{
	Use:   "functions [paths or globs...]",
	Short: "List functions that can be charted",
	Long: `Lists the named functions, methods and bound lambdas in the given files,
directories or glob patterns (e.g. "src/**/*.ts"). Directories are scanned
recursively honouring .cflowignore files and the exclude config key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		conf, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		files, err := expandFiles(conf, args)
		if err != nil {
			return err
		}

		results := make([]FileFunctions, 0, len(files))
		for _, f := range files {
			entry := FileFunctions{File: f.Path, Language: f.Language}
			fns, err := flowchart.ListFile(cmd.Context(), f.FullPath)
			entry.Functions = fns
			if err != nil {
				entry.Error = err.Error()
			}
			results = append(results, entry)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printFunctionTable(results)
		return nil
	},
}

// expandFiles resolves CLI arguments to source files using the configured
// excludes.
func expandFiles(conf *config.Config, args []string) ([]scanner.FileInfo, error) {
	opts := scanner.DefaultOptions()
	opts.Exclude = conf.Exclude
	return scanner.New(opts).Expand(args)
}

func printFunctionTable(results []FileFunctions) {
	var rows [][]string
	total := 0
	for _, r := range results {
		if r.Error != "" {
			rows = append(rows, []string{r.File, "error: " + r.Error, "", ""})
			continue
		}
		for _, fn := range r.Functions {
			lines := strconv.Itoa(fn.Line)
			if fn.EndLine != fn.Line {
				lines += "-" + strconv.Itoa(fn.EndLine)
			}
			rows = append(rows, []string{r.File, fn.Name, fn.Kind, lines})
			total++
		}
	}

	if len(rows) == 0 {
		fmt.Println("No functions found")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(faintStyle).
		Headers("FILE", "FUNCTION", "KIND", "LINES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0 || col == 3:
				return faintStyle
			}
			return cellStyle
		})
	fmt.Println(t)
	fmt.Printf("%d functions in %d files\n", total, len(results))
}

func init() {
	functionsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(functionsCmd)
}
