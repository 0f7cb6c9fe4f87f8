package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME at an empty directory so no global config is read.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"MaxNodes", cfg.MaxNodes, 500},
		{"MaxDepth", cfg.MaxDepth, 64},
		{"MaxFunctionBytes", cfg.MaxFunctionBytes, 200_000},
		{"MaxLabelLength", cfg.MaxLabelLength, 80},
		{"ExpandHOF", cfg.ExpandHOF, true},
		{"ExpandPromises", cfg.ExpandPromises, true},
		{"Direction", cfg.Direction, "TD"},
		{"Format", cfg.Format, "mermaid"},
		{"SocketPath", cfg.SocketPath, "/tmp/cflow.sock"},
		{"CacheSize", cfg.CacheSize, 256},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "tiny max_nodes", mutate: func(c *Config) { c.MaxNodes = 2 }, errContains: "max_nodes"},
		{name: "zero max_depth", mutate: func(c *Config) { c.MaxDepth = 0 }, errContains: "max_depth"},
		{name: "short labels", mutate: func(c *Config) { c.MaxLabelLength = 4 }, errContains: "max_label_length"},
		{name: "unlimited labels", mutate: func(c *Config) { c.MaxLabelLength = 0 }},
		{name: "lowercase direction", mutate: func(c *Config) { c.Direction = "lr" }},
		{name: "bad direction", mutate: func(c *Config) { c.Direction = "up" }, errContains: "direction"},
		{name: "bad format", mutate: func(c *Config) { c.Format = "svg" }, errContains: "format"},
		{name: "no socket", mutate: func(c *Config) { c.SocketPath = "" }, errContains: "socket_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "max_nodes: 120\nexpand_hof: false\ndirection: LR\n")

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if c.MaxNodes != 120 {
		t.Errorf("MaxNodes = %d, want 120", c.MaxNodes)
	}
	if c.ExpandHOF {
		t.Error("ExpandHOF should be false")
	}
	if !c.ExpandPromises {
		t.Error("ExpandPromises should keep its default")
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "max_nodes: [\n")
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromPrecedence(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	project := filepath.Join(root, "svc")

	writeFile(t, filepath.Join(root, "pyproject.toml"), `
[project]
name = "svc"

[tool.codeflow]
max_nodes = 300
max_depth = 20
expand_promises = false
exclude = ["migrations/"]
`)
	writeFile(t, ProjectConfigPath(project), "max_nodes: 250\n")
	t.Setenv("CFLOW_MAX_DEPTH", "12")

	c, err := LoadFrom(project)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if c.MaxNodes != 250 {
		t.Errorf("project config should win over pyproject: MaxNodes = %d", c.MaxNodes)
	}
	if c.MaxDepth != 12 {
		t.Errorf("env should win over files: MaxDepth = %d", c.MaxDepth)
	}
	if c.ExpandPromises {
		t.Error("pyproject expand_promises = false should apply")
	}
	if len(c.Exclude) != 1 || c.Exclude[0] != "migrations/" {
		t.Errorf("Exclude = %v", c.Exclude)
	}
}

func TestLoadFromGlobalConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, ".codeflow", "config.yaml"), "format: dot\n")

	c, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if c.Format != "dot" {
		t.Errorf("Format = %s, want dot", c.Format)
	}
}

func TestLoadFromInvalidPyproject(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[tool.codeflow\n")
	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected error for malformed pyproject.toml")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "limits",
			envVars: map[string]string{"CFLOW_MAX_NODES": "42", "CFLOW_MAX_LABEL_LENGTH": "30"},
			check: func(t *testing.T, c *Config) {
				if c.MaxNodes != 42 || c.MaxLabelLength != 30 {
					t.Errorf("MaxNodes = %d, MaxLabelLength = %d", c.MaxNodes, c.MaxLabelLength)
				}
			},
		},
		{
			name:    "invalid number is ignored",
			envVars: map[string]string{"CFLOW_MAX_NODES": "lots"},
			check: func(t *testing.T, c *Config) {
				if c.MaxNodes != 500 {
					t.Errorf("MaxNodes = %d, want default", c.MaxNodes)
				}
			},
		},
		{
			name:    "booleans",
			envVars: map[string]string{"CFLOW_EXPAND_HOF": "no", "CFLOW_VERBOSE": "yes", "CFLOW_LOG_JSON": "1"},
			check: func(t *testing.T, c *Config) {
				if c.ExpandHOF || !c.Verbose || !c.LogJSON {
					t.Errorf("ExpandHOF=%v Verbose=%v LogJSON=%v", c.ExpandHOF, c.Verbose, c.LogJSON)
				}
			},
		},
		{
			name:    "paths",
			envVars: map[string]string{"CFLOW_SOCKET_PATH": "/tmp/x.sock", "CFLOW_CACHE_FILE": "/tmp/c.msgpack"},
			check: func(t *testing.T, c *Config) {
				if c.SocketPath != "/tmp/x.sock" || c.CacheFile != "/tmp/c.msgpack" {
					t.Errorf("SocketPath=%s CacheFile=%s", c.SocketPath, c.CacheFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			c := DefaultConfig()
			applyEnvOverrides(c)
			tt.check(t, c)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	c := DefaultConfig()
	c.MaxNodes = 99
	c.ExpandPromises = false

	opts := c.BuildOptions()
	if opts.MaxNodes != 99 || opts.ExpandPromises || !opts.ExpandHOF {
		t.Errorf("BuildOptions() = %+v", opts)
	}
}

func TestConfigSave(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "nested", "dirs", "config.yaml")

	c := DefaultConfig()
	c.MaxNodes = 1000
	c.Direction = "LR"
	c.Exclude = []string{"vendor/"}

	if err := c.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if loaded.MaxNodes != 1000 {
		t.Errorf("MaxNodes mismatch: got %d, want 1000", loaded.MaxNodes)
	}
	if loaded.Direction != "LR" {
		t.Errorf("Direction mismatch: got %s, want LR", loaded.Direction)
	}
	if len(loaded.Exclude) != 1 {
		t.Errorf("Exclude mismatch: got %v", loaded.Exclude)
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"10", 10},
		{" 7 ", 7},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseInt(tt.in); got != tt.want {
			t.Errorf("parseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
