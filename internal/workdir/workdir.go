// Package workdir selects the effective execution root for one invocation.
package workdir

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ProjectDirEnv names the environment variable the IDE plugin sets to the
// open project's root directory.
const ProjectDirEnv = "CLAUDE_PROJECT_DIR"

// Resolver holds the ambient inputs for one working-directory resolution.
// Fields are captured once so resolution is a pure function of the struct.
type Resolver struct {
	// ProjectDir is the plugin-provided project root, possibly empty.
	ProjectDir string
	// ProcessDir is the bridge process's own working directory.
	ProcessDir string
	// HomeDir is the invoking user's home directory.
	HomeDir string
	// TempPrefixes lists directory prefixes considered temporary locations.
	TempPrefixes []string
	// Stat reports the file info for a path; overridable in tests.
	Stat func(string) (os.FileInfo, error)
}

// NewResolver captures the current process environment into a Resolver.
func NewResolver() *Resolver {
	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return &Resolver{
		ProjectDir:   os.Getenv(ProjectDirEnv),
		ProcessDir:   cwd,
		HomeDir:      home,
		TempPrefixes: defaultTempPrefixes(),
		Stat:         os.Stat,
	}
}

// Resolve selects the effective execution root. Candidates are tried in
// order: the caller-provided path, the plugin project dir, the process cwd,
// then home. A candidate must exist as a directory; temporary locations are
// skipped only when the plugin project dir is known, since the IDE launches
// the bridge from a throwaway directory in that case. When nothing verifies,
// the project dir or home is returned unverified rather than failing the
// whole invocation.
func (r *Resolver) Resolve(requested string) string {
	candidates := []string{}
	if !isPathSentinel(requested) {
		candidates = append(candidates, requested)
	}
	candidates = append(candidates, r.ProjectDir, r.ProcessDir, r.HomeDir)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if r.ProjectDir != "" && r.isTempPath(abs) {
			continue
		}
		if info, err := r.stat(abs); err == nil && info.IsDir() {
			return abs
		}
	}

	if r.ProjectDir != "" {
		return r.ProjectDir
	}
	return r.HomeDir
}

func (r *Resolver) stat(path string) (os.FileInfo, error) {
	if r.Stat != nil {
		return r.Stat(path)
	}
	return os.Stat(path)
}

// isPathSentinel reports whether the caller path is one of the placeholder
// values hosts send when no directory was chosen.
func isPathSentinel(path string) bool {
	switch strings.TrimSpace(path) {
	case "", "undefined", "null":
		return true
	}
	return false
}

// isTempPath reports whether path lives under a known temporary location.
func (r *Resolver) isTempPath(path string) bool {
	normalized := normalizePath(path)
	for _, prefix := range r.TempPrefixes {
		prefix = normalizePath(prefix)
		if prefix == "" {
			continue
		}
		if normalized == prefix || strings.HasPrefix(normalized, prefix+"/") {
			return true
		}
	}
	return false
}

// normalizePath canonicalizes a path for prefix comparison. Windows paths
// are compared case-insensitively with forward slashes.
func normalizePath(path string) string {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if runtime.GOOS == "windows" {
		cleaned = strings.ToLower(cleaned)
	}
	return strings.TrimSuffix(cleaned, "/")
}

// defaultTempPrefixes lists the platform's temporary directories.
func defaultTempPrefixes() []string {
	if runtime.GOOS == "windows" {
		prefixes := []string{os.TempDir()}
		for _, name := range []string{"TEMP", "TMP"} {
			if value := os.Getenv(name); value != "" {
				prefixes = append(prefixes, value)
			}
		}
		return prefixes
	}
	prefixes := []string{"/tmp", "/var/tmp", "/private/tmp"}
	if value := os.Getenv("TMPDIR"); value != "" {
		prefixes = append(prefixes, value)
	}
	return prefixes
}
