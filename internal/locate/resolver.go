// Package locate finds the supervised daemon binary by walking an ordered
// list of candidate locations.
package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/margooey/lapsusctl/internal/core"
)

// DevelopmentDir is the fixed development checkout probed after the
// bundle-relative candidates when no explicit development path is given
const DevelopmentDir = "/Users/ryder/bin/lapsus"

// Candidate is one entry of the search order. Path is only called when the
// candidate is reached, and returns "" when it does not apply.
type Candidate struct {
	Label string
	Path  func() string
}

// NotFoundError lists every location tried
type NotFoundError struct {
	Binary string
	Tried  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in any expected location (tried: %s); set a custom binary path in the settings",
		e.Binary, strings.Join(e.Tried, ", "))
}

// Resolver walks Candidates in order and returns the first existing path
type Resolver struct {
	Binary     string
	Candidates []Candidate
	// Exists reports whether path exists. Defaults to an os.Stat check.
	Exists func(path string) bool
}

// Resolve returns the first candidate path that exists
func (r *Resolver) Resolve() (string, error) {
	exists := r.Exists
	if exists == nil {
		exists = fileExists
	}

	tried := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		path := c.Path()
		if path == "" {
			continue
		}
		if exists(path) {
			return path, nil
		}
		tried = append(tried, path)
	}

	return "", &NotFoundError{Binary: r.Binary, Tried: tried}
}

// DefaultCandidates builds the standard search order:
// custom path, next to the executable, ../Resources, two, three levels up,
// the development path, ~/bin/lapsus and /usr/local/bin.
// Candidates relative to the executable are skipped when exeDir is empty.
// An empty devPath means binary inside DevelopmentDir.
func DefaultCandidates(cfg core.Configuration, exeDir, home, binary, devPath string) []Candidate {
	if devPath == "" {
		devPath = filepath.Join(DevelopmentDir, binary)
	}
	ancestor := func(levels int) func() string {
		return func() string {
			if exeDir == "" {
				return ""
			}
			dir := exeDir
			for i := 0; i < levels; i++ {
				parent := filepath.Dir(dir)
				if parent == dir {
					return ""
				}
				dir = parent
			}
			return filepath.Join(dir, binary)
		}
	}

	return []Candidate{
		{Label: "custom", Path: func() string { return cfg.CustomBinaryPath }},
		{Label: "bundled", Path: func() string {
			if exeDir == "" {
				return ""
			}
			return filepath.Join(exeDir, binary)
		}},
		{Label: "resources", Path: func() string {
			if exeDir == "" {
				return ""
			}
			parent := filepath.Dir(exeDir)
			if parent == exeDir {
				return ""
			}
			return filepath.Join(parent, "Resources", binary)
		}},
		{Label: "development-tree", Path: ancestor(2)},
		{Label: "bundle-sibling", Path: ancestor(3)},
		{Label: "development", Path: func() string { return devPath }},
		{Label: "user-bin", Path: func() string {
			if home == "" {
				return ""
			}
			return filepath.Join(home, "bin", "lapsus", binary)
		}},
		{Label: "system-bin", Path: func() string { return filepath.Join("/usr/local/bin", binary) }},
	}
}

// Resolve locates the binary using the default search order relative to exeDir
func Resolve(cfg core.Configuration, exeDir string) (string, error) {
	home, _ := os.UserHomeDir()
	r := &Resolver{
		Binary:     core.DefaultBinaryName,
		Candidates: DefaultCandidates(cfg, exeDir, home, core.DefaultBinaryName, ""),
	}
	return r.Resolve()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
