package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			MaxBodyBytes: 5 << 20,
			RateLimitRPS: 20,
		},
		AI: AIConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   2048,
			Temperature: 0.7,
			TimeoutSec:  30,
		},
		Notify: NotifyConfig{
			AggregationDelaySec: 5,
			MaxPerGroup:         10,
			StarMilestones: MilestoneConfig{
				Enabled: true,
				Targets: []int{100, 200, 300, 400, 500, 600, 666, 700, 800, 900, 1000},
			},
		},
		Storage: StorageConfig{
			DataDir: "~/.ghrelay",
		},
		Repos: map[string]*RepoConfig{},
		Users: map[string]string{},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GHRELAY_GITHUB_TOKEN", &c.GitHub.Token)
	envStr("GHRELAY_AI_API_KEY", &c.AI.APIKey)
	envStr("GHRELAY_AI_BASE_URL", &c.AI.BaseURL)
	envStr("GHRELAY_AI_MODEL", &c.AI.Model)
	envStr("GHRELAY_CHAT_WS_URL", &c.Chat.WSURL)
	envStr("GHRELAY_CHAT_ACCESS_TOKEN", &c.Chat.AccessToken)
	envStr("GHRELAY_PROXY_URL", &c.Proxy.URL)
	envStr("GHRELAY_DATA_DIR", &c.Storage.DataDir)

	envStr("GHRELAY_HOST", &c.Server.Host)
	if v := os.Getenv("GHRELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	if c.Proxy.URL != "" && os.Getenv("GHRELAY_PROXY_URL") != "" {
		c.Proxy.Enabled = true
	}
	if c.AI.APIKey != "" {
		c.AI.Enabled = true
	}

	// Superusers from env (comma-separated), merged with file values.
	if v := os.Getenv("GHRELAY_SUPERUSERS"); v != "" {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id != "" && !containsStr(c.Superusers, id) {
				c.Superusers = append(c.Superusers, id)
			}
		}
	}

	// Telemetry
	envStr("GHRELAY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GHRELAY_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GHRELAY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GHRELAY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GHRELAY_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file atomically.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Hash returns a short SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by the status endpoint and doctor output.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	data, err := json.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.GitHub.Token)
	maskNonEmpty(&cp.AI.APIKey)
	maskNonEmpty(&cp.Chat.AccessToken)
	for _, rc := range cp.Repos {
		maskNonEmpty(&rc.WebhookSecret)
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DataDir returns the expanded storage directory.
func (c *Config) DataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Storage.DataDir)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
