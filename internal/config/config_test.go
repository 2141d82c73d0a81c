package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("default port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.AggregationDelay().Seconds() != 5 {
		t.Fatalf("default aggregation delay = %v", cfg.AggregationDelay())
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// relay listener
		server: { port: 9000 },
		repo_mappings: {
			"octo/repo": {
				alias: "Octo",
				verify_signature: true,
				webhook_secret: "hush",
				qq_group_ids: ["123"],
				notification_channels: ["qq"],
			},
		},
	}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Server.Port)
	}
	rc := cfg.Repo("octo/repo")
	if rc == nil {
		t.Fatal("repo mapping missing")
	}
	if !rc.IsEnabled() {
		t.Fatal("missing enabled key should count as enabled")
	}
	if cfg.RepoDisplayName("octo/repo") != "Octo" {
		t.Fatalf("display name = %q", cfg.RepoDisplayName("octo/repo"))
	}
	if cfg.RepoSecret("octo/repo") != "hush" {
		t.Fatal("secret not loaded")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GHRELAY_GITHUB_TOKEN", "tok-env")
	t.Setenv("GHRELAY_PORT", "7777")
	t.Setenv("GHRELAY_SUPERUSERS", "111, 222")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.Token != "tok-env" {
		t.Fatalf("token = %q", cfg.GitHub.Token)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Superusers) != 2 || cfg.Superusers[0] != "111" || cfg.Superusers[1] != "222" {
		t.Fatalf("superusers = %v", cfg.Superusers)
	}
}

func TestMessageTypeAllowed(t *testing.T) {
	rc := &RepoConfig{}
	if !rc.MessageTypeAllowed("push") {
		t.Fatal("empty allow list should allow everything")
	}
	rc.AllowedTypes = []string{"push", "release"}
	if !rc.MessageTypeAllowed("push") || rc.MessageTypeAllowed("fork") {
		t.Fatal("allow list not honored")
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.GitHub.Token = "secret-token"
	cfg.Repos["o/r"] = &RepoConfig{WebhookSecret: "hush"}

	masked := cfg.MaskedCopy()
	if masked.GitHub.Token != "***" {
		t.Fatalf("token not masked: %q", masked.GitHub.Token)
	}
	if masked.Repos["o/r"].WebhookSecret != "***" {
		t.Fatal("repo secret not masked")
	}
	if cfg.GitHub.Token != "secret-token" {
		t.Fatal("original mutated")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Server.Port = 9100
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.Port != 9100 {
		t.Fatalf("port after round trip = %d", loaded.Server.Port)
	}
}

func TestReplace(t *testing.T) {
	cfg := Default()
	next := Default()
	next.Server.Port = 9999
	next.Repos = map[string]*RepoConfig{"octo/new": {Alias: "New"}}

	cfg.Replace(next)

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d after replace", cfg.Server.Port)
	}
	if cfg.Repo("octo/new") == nil {
		t.Error("repo mapping not replaced")
	}
}
