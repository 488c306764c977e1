// Package locator finds the Claude Code runtime executable on the host.
package locator

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// executableName is the runtime binary searched for on every platform.
// exec.LookPath applies PATHEXT on Windows, so no extension is needed here.
const executableName = "claude"

// Locator probes the host for a usable runtime executable. The probe
// functions are fields so tests can substitute them.
type Locator struct {
	// LookPath searches the process PATH; defaults to exec.LookPath.
	LookPath func(string) (string, error)
	// LocateOutput runs the platform locate tool and returns its stdout.
	LocateOutput func(tool, name string) ([]byte, error)
	// WellKnown lists fixed install paths checked as a last step.
	WellKnown []string
	// Stat verifies candidates on disk; defaults to os.Stat.
	Stat func(string) (os.FileInfo, error)
}

// New builds a Locator wired to the real host.
func New() *Locator {
	return &Locator{
		LookPath: exec.LookPath,
		LocateOutput: func(tool, name string) ([]byte, error) {
			return exec.Command(tool, name).Output()
		},
		WellKnown: wellKnownPaths(),
		Stat:      os.Stat,
	}
}

// Find returns the best available runtime executable path. An empty result
// means no install was found and the embedded default name should be used.
// Every probe failure is non-fatal; the next step in the chain is tried.
func (l *Locator) Find() string {
	if path, err := l.LookPath(executableName); err == nil && l.exists(path) {
		return path
	}

	if out, err := l.LocateOutput(locateTool(), executableName); err == nil {
		// `where` can print several matches; the first line wins.
		line := firstLine(string(out))
		if line != "" && l.exists(line) {
			return line
		}
	}

	for _, candidate := range l.WellKnown {
		if candidate != "" && l.exists(candidate) {
			return candidate
		}
	}
	return ""
}

func (l *Locator) exists(path string) bool {
	stat := l.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	return err == nil && !info.IsDir()
}

// locateTool names the platform's executable locate command.
func locateTool() string {
	if runtime.GOOS == "windows" {
		return "where"
	}
	return "which"
}

func firstLine(out string) string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		out = out[:idx]
	}
	return strings.TrimSpace(out)
}

// wellKnownPaths lists install locations used by the official installers and
// common package managers.
func wellKnownPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	if runtime.GOOS == "windows" {
		return []string{
			filepath.Join(home, ".claude", "local", "claude.exe"),
			filepath.Join(home, "AppData", "Roaming", "npm", "claude.cmd"),
		}
	}
	return []string{
		filepath.Join(home, ".claude", "local", "claude"),
		filepath.Join(home, ".local", "bin", "claude"),
		"/usr/local/bin/claude",
		"/opt/homebrew/bin/claude",
		filepath.Join(home, ".npm-global", "bin", "claude"),
	}
}
