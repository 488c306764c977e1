package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
}

func TestResolveFromPrefersConfigFileOverEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("ANTHROPIC_BASE_URL", "https://env.example.com")
	path := writeConfigFile(t, `{"apiKey":"file-key","baseUrl":"https://file.example.com"}`)

	creds, err := ResolveFrom(path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "file-key" || creds.APIKeySource != "config" {
		t.Fatalf("unexpected key resolution: %+v", creds)
	}
	if creds.BaseURL != "https://file.example.com" || creds.BaseURLSource != "config" {
		t.Fatalf("unexpected endpoint resolution: %+v", creds)
	}
}

func TestResolveFromFallsBackToEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "token-key")

	creds, err := ResolveFrom(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "token-key" || creds.APIKeySource != "env" {
		t.Fatalf("unexpected key resolution: %+v", creds)
	}
	if creds.BaseURL != DefaultBaseURL || creds.BaseURLSource != "default" {
		t.Fatalf("unexpected endpoint resolution: %+v", creds)
	}
}

func TestResolveFromPartialFileMergesEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ANTHROPIC_BASE_URL", "https://gateway.internal")
	path := writeConfigFile(t, `{"apiKey":"file-key"}`)

	creds, err := ResolveFrom(path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "file-key" {
		t.Fatalf("unexpected key: %q", creds.APIKey)
	}
	if creds.BaseURL != "https://gateway.internal" || creds.BaseURLSource != "env" {
		t.Fatalf("unexpected endpoint resolution: %+v", creds)
	}
}

func TestResolveFromMissingKeyEverywhere(t *testing.T) {
	clearCredentialEnv(t)

	_, err := ResolveFrom(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrAPIKeyMissing) {
		t.Fatalf("expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestResolveFromMalformedFileIsIgnored(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	path := writeConfigFile(t, `{not json`)

	creds, err := ResolveFrom(path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if creds.APIKey != "env-key" || creds.APIKeySource != "env" {
		t.Fatalf("unexpected key resolution: %+v", creds)
	}
}

func TestIsOfficialEndpoint(t *testing.T) {
	cases := []struct {
		baseURL string
		want    bool
	}{
		{"https://api.anthropic.com", true},
		{"https://API.ANTHROPIC.COM/v1", true},
		{"https://proxy.corp/api.anthropic.com/relay", true},
		{"https://gateway.internal", false},
		{"", false},
	}
	for _, tc := range cases {
		creds := &Credentials{BaseURL: tc.baseURL}
		if got := creds.IsOfficialEndpoint(); got != tc.want {
			t.Fatalf("IsOfficialEndpoint(%q) = %v, want %v", tc.baseURL, got, tc.want)
		}
	}
}
