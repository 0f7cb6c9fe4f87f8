package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ManifestFile is written into the output directory of every export.
const ManifestFile = ".cflow-export.yaml"

const manifestVersion = 1

// manifestEntry records what one source file produced.
type manifestEntry struct {
	Hash    string   `yaml:"hash"`
	Outputs []string `yaml:"outputs,omitempty"`
}

// Manifest tracks the content hash of each exported source file so later
// runs can skip files that did not change.
type Manifest struct {
	mu      sync.Mutex
	path    string
	Version int                      `yaml:"version"`
	Format  string                   `yaml:"format"`
	Files   map[string]manifestEntry `yaml:"files"`
}

// LoadManifest reads the manifest in dir. A missing file gives an empty
// manifest; so does one written by an incompatible version.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{
		path:    filepath.Join(dir, ManifestFile),
		Version: manifestVersion,
		Files:   map[string]manifestEntry{},
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var loaded Manifest
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", m.path, err)
	}
	if loaded.Version != manifestVersion || loaded.Files == nil {
		return m, nil
	}
	m.Format = loaded.Format
	m.Files = loaded.Files
	return m, nil
}

// SetFormat resets the manifest when the output format changes.
func (m *Manifest) SetFormat(format string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Format != format {
		m.Files = map[string]manifestEntry{}
		m.Format = format
	}
}

// Unchanged reports whether source was exported with the same content hash
// and every file it produced still exists.
func (m *Manifest) Unchanged(source, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.Files[source]
	if !ok || entry.Hash != hash {
		return false
	}
	dir := filepath.Dir(m.path)
	for _, out := range entry.Outputs {
		if _, err := os.Stat(filepath.Join(dir, out)); err != nil {
			return false
		}
	}
	return true
}

// Outputs returns the file names recorded for source.
func (m *Manifest) Outputs(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Files[source].Outputs...)
}

// Record stores the hash and output file names of source.
func (m *Manifest) Record(source, hash string, outputs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := append([]string(nil), outputs...)
	sort.Strings(sorted)
	m.Files[source] = manifestEntry{Hash: hash, Outputs: sorted}
}

// Forget drops sources that are not in keep.
func (m *Manifest) Forget(keep map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for source := range m.Files {
		if !keep[source] {
			delete(m.Files, source)
		}
	}
}

// Save writes the manifest next to the exported files.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func contentHash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
