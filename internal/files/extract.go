// Package files implements the file side-channel: agents drop files under a
// known directory and reference them by absolute path in their responses.
package files

import (
	"path/filepath"
	"strings"
)

// Extractor strips embedded file paths from response text and returns them
// for upload alongside the message.
type Extractor struct {
	dir string
}

func NewExtractor(filesDir string) *Extractor {
	abs, err := filepath.Abs(filesDir)
	if err != nil {
		abs = filesDir
	}
	return &Extractor{dir: strings.TrimSuffix(abs, "/") + "/"}
}

// Extract removes every token that is an absolute path under the files
// directory and returns the cleaned text plus the paths in order of first
// appearance.
func (e *Extractor) Extract(text string) (string, []string) {
	if text == "" || !strings.Contains(text, e.dir) {
		return text, nil
	}
	var (
		paths []string
		seen  = map[string]bool{}
		lines []string
	)
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		var kept []string
		for _, f := range fields {
			p := strings.Trim(f, "()[]<>\"'`,;")
			if strings.HasPrefix(p, e.dir) && len(p) > len(e.dir) {
				if !seen[p] {
					seen[p] = true
					paths = append(paths, p)
				}
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) == 0 && len(fields) > 0 {
			// The line was only file references; drop it entirely.
			continue
		}
		if len(kept) == len(fields) {
			lines = append(lines, line)
			continue
		}
		lines = append(lines, strings.Join(kept, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), paths
}
