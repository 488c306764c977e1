package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func testResolver(t *testing.T) (*Resolver, string, string) {
	t.Helper()
	project := t.TempDir()
	home := t.TempDir()
	return &Resolver{
		ProjectDir: project,
		ProcessDir: t.TempDir(),
		HomeDir:    home,
		// A prefix no test directory lives under, so verification is
		// exercised without the host's real temp dir interfering.
		TempPrefixes: []string{"/bridge-test-scratch"},
	}, project, home
}

func TestResolvePrefersCallerPath(t *testing.T) {
	resolver, _, _ := testResolver(t)
	requested := t.TempDir()

	got := resolver.Resolve(requested)

	want, _ := filepath.Abs(requested)
	if got != want {
		t.Fatalf("resolved %q, want %q", got, want)
	}
}

func TestResolveSkipsSentinelValues(t *testing.T) {
	resolver, project, _ := testResolver(t)

	for _, sentinel := range []string{"", "undefined", "null", "  null  "} {
		if got := resolver.Resolve(sentinel); got != project {
			t.Fatalf("Resolve(%q) = %q, want project dir %q", sentinel, got, project)
		}
	}
}

func TestResolveSkipsMissingCallerPath(t *testing.T) {
	resolver, project, _ := testResolver(t)

	got := resolver.Resolve(filepath.Join(t.TempDir(), "does-not-exist"))

	if got != project {
		t.Fatalf("resolved %q, want project dir %q", got, project)
	}
}

func TestResolveRejectsTempPathsWhenProjectKnown(t *testing.T) {
	resolver, project, _ := testResolver(t)
	scratchRoot := t.TempDir()
	scratch := filepath.Join(scratchRoot, "ide-scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	resolver.TempPrefixes = []string{scratchRoot}

	got := resolver.Resolve(scratch)

	if got != project {
		t.Fatalf("resolved %q, want project dir %q", got, project)
	}
}

func TestResolveAllowsTempPathsWithoutProject(t *testing.T) {
	resolver, _, _ := testResolver(t)
	resolver.ProjectDir = ""
	scratchRoot := t.TempDir()
	scratch := filepath.Join(scratchRoot, "ide-scratch")
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	resolver.TempPrefixes = []string{scratchRoot}

	got := resolver.Resolve(scratch)

	want, _ := filepath.Abs(scratch)
	if got != want {
		t.Fatalf("resolved %q, want %q", got, want)
	}
}

func TestResolveFallsBackUnverified(t *testing.T) {
	resolver := &Resolver{
		ProjectDir: "/nowhere/project",
		ProcessDir: "/nowhere/cwd",
		HomeDir:    "/nowhere/home",
	}

	if got := resolver.Resolve("/nowhere/requested"); got != "/nowhere/project" {
		t.Fatalf("resolved %q, want unverified project dir", got)
	}

	resolver.ProjectDir = ""
	if got := resolver.Resolve("/nowhere/requested"); got != "/nowhere/home" {
		t.Fatalf("resolved %q, want unverified home dir", got)
	}
}

func TestResolveHomeAsLastVerifiedCandidate(t *testing.T) {
	home := t.TempDir()
	resolver := &Resolver{
		ProjectDir: "/nowhere/project",
		ProcessDir: "/nowhere/cwd",
		HomeDir:    home,
	}

	if got := resolver.Resolve(""); got != home {
		t.Fatalf("resolved %q, want home %q", got, home)
	}
}
