package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a codeflow configuration interactively",
	Long: `Guides you through the graph limits, expansion switches and output
defaults, then writes a config file and runs the health check.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func positiveInt(min int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if n < min {
			return fmt.Errorf("must be at least %d", min)
		}
		return nil
	}
}

func runInit(cmd *cobra.Command) error {
	cfg := config.DefaultConfig()

	maxNodes := strconv.Itoa(cfg.MaxNodes)
	maxDepth := strconv.Itoa(cfg.MaxDepth)
	expandHOF := cfg.ExpandHOF
	expandPromises := cfg.ExpandPromises
	format := cfg.Format
	direction := cfg.Direction

	// === SECTION 1: Graph limits ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Maximum nodes per flowchart").
				Description("Larger functions are cut off with a (truncated) node").
				Placeholder(maxNodes).
				Validate(positiveInt(3)).
				Value(&maxNodes),
			huh.NewInput().
				Title("Maximum nesting depth").
				Placeholder(maxDepth).
				Validate(positiveInt(1)).
				Value(&maxDepth),
		),
		// === SECTION 2: Expansion ===
		huh.NewGroup(
			huh.NewConfirm().
				Title("Expand higher-order calls").
				Description("Show map/filter/forEach callbacks as explicit loops").
				Affirmative("Yes").
				Negative("No").
				Value(&expandHOF),
			huh.NewConfirm().
				Title("Expand promise chains").
				Description("Show .then/.catch/.finally as explicit steps").
				Affirmative("Yes").
				Negative("No").
				Value(&expandPromises),
		),
		// === SECTION 3: Output ===
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default output format").
				Options(
					huh.NewOption("Mermaid", "mermaid"),
					huh.NewOption("Graphviz DOT", "dot"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("Text", "text"),
				).
				Value(&format),
			huh.NewSelect[string]().
				Title("Layout direction").
				Options(
					huh.NewOption("Top down", "TD"),
					huh.NewOption("Left to right", "LR"),
					huh.NewOption("Bottom up", "BT"),
					huh.NewOption("Right to left", "RL"),
				).
				Value(&direction),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.codeflow/config.yaml)", "project"),
					huh.NewOption("Global (~/.codeflow/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigPath(".")
	if saveLocationChoice == "global" {
		configPath = filepath.Join(config.Dir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// Validated by the form.
	cfg.MaxNodes, _ = strconv.Atoi(maxNodes)
	cfg.MaxDepth, _ = strconv.Atoi(maxDepth)
	cfg.ExpandHOF = expandHOF
	cfg.ExpandPromises = expandPromises
	cfg.Format = format
	cfg.Direction = direction

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Max nodes: %d\n", cfg.MaxNodes)
	fmt.Printf("Max depth: %d\n", cfg.MaxDepth)
	fmt.Printf("Expand higher-order calls: %t\n", cfg.ExpandHOF)
	fmt.Printf("Expand promise chains: %t\n", cfg.ExpandPromises)
	fmt.Printf("Format: %s, direction: %s\n", cfg.Format, cfg.Direction)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	fmt.Println("\n=== Running Health Check ===")
	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(cmd.Context(), loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	healthcheck.Display(os.Stdout, result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
