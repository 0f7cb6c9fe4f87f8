package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/l3aro/codeflow/internal/export"
)

const pySource = `def classify(x):
    if x > 0:
        return "pos"
    return "neg"
`

// resetFlags restores every flag so one test's arguments do not leak into
// the next Execute.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() { resetFlags(RootCmd) })
	RootCmd.SetArgs(args)
	return RootCmd.Execute()
}

func TestGraphCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	out := filepath.Join(dir, "classify.mmd")
	if err := os.WriteFile(src, []byte(pySource), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "graph", src, "--func", "classify", "--format", "mermaid", "--direction", "LR", "--out", out); err != nil {
		t.Fatalf("graph failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "flowchart LR\n") {
		t.Errorf("unexpected output:\n%s", data)
	}
	if !strings.Contains(string(data), "x > 0") {
		t.Errorf("condition missing from output:\n%s", data)
	}
}

func TestGraphCommandRejectsUnsupportedFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(src, []byte("hello"), 0o644)

	if err := execute(t, "graph", src); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "app.py"), []byte(pySource), 0o644)
	out := filepath.Join(t.TempDir(), "charts")

	if err := execute(t, "export", dir, "--out", out, "--format", "dot"); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	charts, err := filepath.Glob(filepath.Join(out, "*.dot"))
	if err != nil {
		t.Fatal(err)
	}
	if len(charts) != 1 || !strings.HasSuffix(charts[0], "app.py.classify.dot") {
		t.Errorf("unexpected export files: %v", charts)
	}
	if _, err := os.Stat(filepath.Join(out, export.ManifestFile)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}

func TestGraphCommandUsesConfigFlag(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	out := filepath.Join(dir, "out.mmd")
	conf := filepath.Join(dir, "config.yaml")
	os.WriteFile(src, []byte(pySource), 0o644)
	os.WriteFile(conf, []byte("direction: BT\nformat: mermaid\nsocket_path: /tmp/cflow-test.sock\n"), 0o644)

	if err := execute(t, "graph", src, "--config", conf, "--out", out); err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	data, _ := os.ReadFile(out)
	if !strings.HasPrefix(string(data), "flowchart BT\n") {
		t.Errorf("config direction not applied:\n%s", data)
	}
}

func TestGraphCommandByLine(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	out := filepath.Join(dir, "out.json")
	os.WriteFile(src, []byte(pySource), 0o644)

	if err := execute(t, "graph", src, "--line", "3", "--col", "9", "--format", "json", "--out", out); err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	data, _ := os.ReadFile(out)
	if !strings.Contains(string(data), `"title": "def classify(x)"`) {
		t.Errorf("unexpected graph:\n%s", data)
	}

	if err := execute(t, "graph", src, "--line", "99"); err == nil {
		t.Error("Expected error for a line past the end of the file")
	}
}
