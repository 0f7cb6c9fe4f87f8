// Package healthcheck verifies that codeflow can parse every supported
// language, that its configuration is usable and whether a daemon answers.
package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/l3aro/codeflow/pkg/flowchart"
)

// Status values for a single check.
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// CheckStatus is the outcome of one check.
type CheckStatus struct {
	Name   string
	Status string
	Detail string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string
	Config         CheckStatus
	Grammars       []CheckStatus
	Daemon         CheckStatus
}

// HasErrors reports whether any check failed. A missing daemon is only a
// warning since graphs are then built in-process.
func (r *HealthCheckResult) HasErrors() bool {
	if r.Config.Status == StatusError || r.Daemon.Status == StatusError {
		return true
	}
	for _, g := range r.Grammars {
		if g.Status == StatusError {
			return true
		}
	}
	return false
}

// samples holds one small function per registered language.
var samples = map[string]string{
	"python":     "def probe(x):\n    if x:\n        return 1\n    return 0\n",
	"typescript": "function probe(x: number): number {\n  if (x) { return 1; }\n  return 0;\n}\n",
	"tsx":        "function probe(x: number) {\n  if (x) { return <b />; }\n  return null;\n}\n",
	"javascript": "function probe(x) {\n  if (x) { return 1; }\n  return 0;\n}\n",
}

// Check runs every check against cfg.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use.
func Check(ctx context.Context, cfg *config.Config, savedPath, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Config = checkConfig(cfg)
	result.Grammars = checkGrammars(ctx, cfg)
	result.Daemon = checkDaemon(ctx, cfg.SocketPath)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if strings.HasPrefix(path, config.Dir()+string(filepath.Separator)) {
		return "global"
	}
	return "project"
}

func checkConfig(cfg *config.Config) CheckStatus {
	status := CheckStatus{Name: "config"}
	if err := cfg.Validate(); err != nil {
		status.Status = StatusError
		status.Detail = err.Error()
		return status
	}
	status.Status = StatusOK
	status.Detail = fmt.Sprintf("max_nodes=%d max_depth=%d format=%s", cfg.MaxNodes, cfg.MaxDepth, cfg.Format)
	return status
}

// checkGrammars builds a flowchart for each sample. A degenerate graph means
// the grammar failed to load or the lowering is broken.
func checkGrammars(ctx context.Context, cfg *config.Config) []CheckStatus {
	opts := cfg.BuildOptions()
	var out []CheckStatus
	for _, name := range sortedSampleNames() {
		g := flowchart.Generate(ctx, flowchart.Request{
			Source:       []byte(samples[name]),
			Language:     name,
			FunctionName: "probe",
			Options:      &opts,
		})
		status := CheckStatus{Name: name}
		if g.Degenerate {
			status.Status = StatusError
			if len(g.Nodes) > 0 {
				status.Detail = g.Nodes[0].Label
			}
		} else {
			status.Status = StatusOK
			status.Detail = fmt.Sprintf("%d nodes, %d edges", len(g.Nodes), len(g.Edges))
		}
		out = append(out, status)
	}
	return out
}

func checkDaemon(ctx context.Context, socketPath string) CheckStatus {
	status := CheckStatus{Name: "daemon"}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info, err := daemon.Ping(ctx, socketPath)
	if err != nil {
		status.Status = StatusWarning
		if _, statErr := os.Stat(socketPath); statErr != nil {
			status.Detail = "not running, graphs are built in-process"
		} else {
			status.Detail = fmt.Sprintf("not responding at %s: %v", socketPath, err)
		}
		return status
	}
	status.Status = StatusOK
	status.Detail = fmt.Sprintf("v%s pid %d, %d cached graphs", info.Version, info.PID, info.Cache.Length)
	return status
}
