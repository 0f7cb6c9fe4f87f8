package scanner

import (
	"path/filepath"
	"strings"

	"github.com/l3aro/codeflow/pkg/lang"
)

// generatedSuffixes are files with a supported extension that never hold
// hand-written function bodies worth charting.
var generatedSuffixes = []string{".d.ts", ".min.js", ".bundle.js"}

// DetectLanguage returns the flowchart language for a file path, or "" when
// the file is unsupported or generated.
func DetectLanguage(path string) string {
	base := strings.ToLower(filepath.Base(path))
	for _, s := range generatedSuffixes {
		if strings.HasSuffix(base, s) {
			return ""
		}
	}
	return lang.DetectLanguage(path)
}
