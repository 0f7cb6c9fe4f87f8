package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// Config holds all configuration for codeflow
type Config struct {
	// Graph construction limits
	MaxNodes         int `yaml:"max_nodes" env:"CFLOW_MAX_NODES"`
	MaxDepth         int `yaml:"max_depth" env:"CFLOW_MAX_DEPTH"`
	MaxFunctionBytes int `yaml:"max_function_bytes" env:"CFLOW_MAX_FUNCTION_BYTES"`
	MaxLabelLength   int `yaml:"max_label_length" env:"CFLOW_MAX_LABEL_LENGTH"`

	// Expansion of higher-order calls and promise chains into explicit loops
	ExpandHOF      bool `yaml:"expand_hof" env:"CFLOW_EXPAND_HOF"`
	ExpandPromises bool `yaml:"expand_promises" env:"CFLOW_EXPAND_PROMISES"`

	// Output
	Direction string `yaml:"direction" env:"CFLOW_DIRECTION"`
	Format    string `yaml:"format" env:"CFLOW_FORMAT"`

	// Extra ignore patterns for directory scans, in .gitignore syntax
	Exclude []string `yaml:"exclude,omitempty"`

	// Socket path for IPC communication
	SocketPath string `yaml:"socket_path" env:"CFLOW_SOCKET_PATH"`

	// Graph cache held by the daemon
	CacheSize int    `yaml:"cache_size" env:"CFLOW_CACHE_SIZE"`
	CacheFile string `yaml:"cache_file" env:"CFLOW_CACHE_FILE"`

	// Logging
	Verbose bool `yaml:"verbose" env:"CFLOW_VERBOSE"`
	LogJSON bool `yaml:"log_json" env:"CFLOW_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	opts := cfg.DefaultOptions()
	return &Config{
		MaxNodes:         opts.MaxNodes,
		MaxDepth:         opts.MaxDepth,
		MaxFunctionBytes: 200_000,
		MaxLabelLength:   opts.MaxLabelLength,
		ExpandHOF:        opts.ExpandHOF,
		ExpandPromises:   opts.ExpandPromises,
		Direction:        "TD",
		Format:           "mermaid",
		SocketPath:       "/tmp/cflow.sock",
		CacheSize:        256,
		CacheFile:        filepath.Join(Dir(), "cache.msgpack"),
		Verbose:          false,
		LogJSON:          false,
	}
}

// Dir returns the global configuration directory (~/.codeflow).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeflow"
	}
	return filepath.Join(home, ".codeflow")
}

// globalConfigFilePath returns the global config file path (~/.codeflow/config.yaml)
func globalConfigFilePath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ProjectConfigPath returns the project-level config file path under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".codeflow", "config.yaml")
}

// Load reads configuration for the current directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads configuration with the following priority (highest to lowest):
// 1. Environment variables (CFLOW_*)
// 2. Project-level config (<dir>/.codeflow/config.yaml)
// 3. [tool.codeflow] in the nearest pyproject.toml at or above dir
// 4. Global config (~/.codeflow/config.yaml)
// 5. Defaults
func LoadFrom(dir string) (*Config, error) {
	c := DefaultConfig()

	globalConfigPath := globalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	if err := applyPyproject(c, dir); err != nil {
		return nil, err
	}

	projectConfigPath := ProjectConfigPath(dir)
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	c := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// BuildOptions returns the graph construction options.
func (c *Config) BuildOptions() cfg.Options {
	return cfg.Options{
		MaxNodes:       c.MaxNodes,
		MaxDepth:       c.MaxDepth,
		MaxLabelLength: c.MaxLabelLength,
		ExpandHOF:      c.ExpandHOF,
		ExpandPromises: c.ExpandPromises,
	}
}

// pyproject mirrors the [tool.codeflow] table. Pointers distinguish an
// explicit false or zero from an absent key.
type pyproject struct {
	Tool struct {
		Codeflow struct {
			MaxNodes         *int     `toml:"max_nodes"`
			MaxDepth         *int     `toml:"max_depth"`
			MaxFunctionBytes *int     `toml:"max_function_bytes"`
			MaxLabelLength   *int     `toml:"max_label_length"`
			ExpandHOF        *bool    `toml:"expand_hof"`
			ExpandPromises   *bool    `toml:"expand_promises"`
			Direction        string   `toml:"direction"`
			Format           string   `toml:"format"`
			Exclude          []string `toml:"exclude"`
		} `toml:"codeflow"`
	} `toml:"tool"`
}

// findPyprojectToml walks up the directory tree to find pyproject.toml
func findPyprojectToml(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, "pyproject.toml")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func applyPyproject(c *Config, dir string) error {
	path, ok := findPyprojectToml(dir)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var p pyproject
	if err := toml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	t := p.Tool.Codeflow
	if t.MaxNodes != nil {
		c.MaxNodes = *t.MaxNodes
	}
	if t.MaxDepth != nil {
		c.MaxDepth = *t.MaxDepth
	}
	if t.MaxFunctionBytes != nil {
		c.MaxFunctionBytes = *t.MaxFunctionBytes
	}
	if t.MaxLabelLength != nil {
		c.MaxLabelLength = *t.MaxLabelLength
	}
	if t.ExpandHOF != nil {
		c.ExpandHOF = *t.ExpandHOF
	}
	if t.ExpandPromises != nil {
		c.ExpandPromises = *t.ExpandPromises
	}
	if t.Direction != "" {
		c.Direction = t.Direction
	}
	if t.Format != "" {
		c.Format = t.Format
	}
	if len(t.Exclude) > 0 {
		c.Exclude = append(c.Exclude, t.Exclude...)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(c *Config) {
	if i := parseInt(os.Getenv("CFLOW_MAX_NODES")); i > 0 {
		c.MaxNodes = i
	}
	if i := parseInt(os.Getenv("CFLOW_MAX_DEPTH")); i > 0 {
		c.MaxDepth = i
	}
	if i := parseInt(os.Getenv("CFLOW_MAX_FUNCTION_BYTES")); i > 0 {
		c.MaxFunctionBytes = i
	}
	if i := parseInt(os.Getenv("CFLOW_MAX_LABEL_LENGTH")); i > 0 {
		c.MaxLabelLength = i
	}
	if v := os.Getenv("CFLOW_EXPAND_HOF"); v != "" {
		c.ExpandHOF = parseBool(v)
	}
	if v := os.Getenv("CFLOW_EXPAND_PROMISES"); v != "" {
		c.ExpandPromises = parseBool(v)
	}
	if v := os.Getenv("CFLOW_DIRECTION"); v != "" {
		c.Direction = v
	}
	if v := os.Getenv("CFLOW_FORMAT"); v != "" {
		c.Format = v
	}
	if v := os.Getenv("CFLOW_SOCKET_PATH"); v != "" {
		c.SocketPath = v
	}
	if i := parseInt(os.Getenv("CFLOW_CACHE_SIZE")); i > 0 {
		c.CacheSize = i
	}
	if v := os.Getenv("CFLOW_CACHE_FILE"); v != "" {
		c.CacheFile = v
	}
	if v := os.Getenv("CFLOW_VERBOSE"); v != "" {
		c.Verbose = parseBool(v)
	}
	if v := os.Getenv("CFLOW_LOG_JSON"); v != "" {
		c.LogJSON = parseBool(v)
	}
}

var (
	validDirections = []string{"TD", "TB", "LR", "BT", "RL"}
	validFormats    = []string{"mermaid", "dot", "json", "text"}
)

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.MaxNodes < 3 {
		return fmt.Errorf("max_nodes must be at least 3")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive")
	}
	if c.MaxFunctionBytes < 0 {
		return fmt.Errorf("max_function_bytes must be non-negative")
	}
	if c.MaxLabelLength != 0 && c.MaxLabelLength < 8 {
		return fmt.Errorf("max_label_length must be 0 (unlimited) or at least 8")
	}
	if !oneOf(strings.ToUpper(c.Direction), validDirections) {
		return fmt.Errorf("invalid direction: %s (must be one of %s)", c.Direction, strings.Join(validDirections, ", "))
	}
	if !oneOf(strings.ToLower(c.Format), validFormats) {
		return fmt.Errorf("invalid format: %s (must be one of %s)", c.Format, strings.Join(validFormats, ", "))
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}
	return nil
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
