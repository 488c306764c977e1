package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// officialHost identifies the canonical Anthropic API endpoint. Any base URL
// that does not contain this host is treated as a custom gateway.
const officialHost = "api.anthropic.com"

// DefaultBaseURL is the endpoint used when neither the config file nor the
// environment names one.
const DefaultBaseURL = "https://api.anthropic.com"

// Credentials are the resolved API key and endpoint for one invocation.
type Credentials struct {
	// APIKey is the bearer token used for Authorization.
	APIKey string
	// BaseURL is the API endpoint base URL.
	BaseURL string
	// APIKeySource records where the key came from: "config", "env" or "".
	APIKeySource string
	// BaseURLSource records where the endpoint came from: "config", "env" or "default".
	BaseURLSource string
}

// ErrAPIKeyMissing is returned when no API key is configured anywhere.
var ErrAPIKeyMissing = errors.New("no API key configured")

// fileConfig mirrors the key fields of ~/.claude-bridge/config.json.
type fileConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
}

// BaseDir returns the root directory for bridge state (config, transcripts, logs).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".claude-bridge"), nil
}

// FilePath returns the default config file path.
func FilePath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.json"), nil
}

// Resolve merges the config file and the process environment into the active
// credentials. File key fields win over environment variables.
func Resolve() (*Credentials, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}
	return ResolveFrom(path)
}

// ResolveFrom resolves credentials reading the config file at path. A missing
// or unreadable file is not an error; the environment alone may satisfy the
// resolution.
func ResolveFrom(path string) (*Credentials, error) {
	creds := &Credentials{}

	if raw, err := os.ReadFile(path); err == nil {
		var cfg fileConfig
		// Malformed config files are ignored rather than fatal; the env
		// fallback below may still produce usable credentials.
		if err := json.Unmarshal(raw, &cfg); err == nil {
			if cfg.APIKey != "" {
				creds.APIKey = cfg.APIKey
				creds.APIKeySource = "config"
			}
			if cfg.BaseURL != "" {
				creds.BaseURL = cfg.BaseURL
				creds.BaseURLSource = "config"
			}
		}
	}

	if creds.APIKey == "" {
		if key := firstEnv("ANTHROPIC_API_KEY", "ANTHROPIC_AUTH_TOKEN"); key != "" {
			creds.APIKey = key
			creds.APIKeySource = "env"
		}
	}
	if creds.BaseURL == "" {
		if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" {
			creds.BaseURL = url
			creds.BaseURLSource = "env"
		}
	}
	if creds.BaseURL == "" {
		creds.BaseURL = DefaultBaseURL
		creds.BaseURLSource = "default"
	}

	if creds.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	return creds, nil
}

// IsOfficialEndpoint reports whether the endpoint targets the canonical
// Anthropic API host. Matching is a case-insensitive containment test so
// proxies embedding the host in a longer URL still count as official.
func (c *Credentials) IsOfficialEndpoint() bool {
	return strings.Contains(strings.ToLower(c.BaseURL), officialHost)
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}
