package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "berrymon.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000/api/v1" {
		t.Fatalf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Poll.DataInterval != 2*time.Second || cfg.Poll.Cap != 200 {
		t.Fatalf("poll = %+v", cfg.Poll)
	}
	if len(cfg.Feeds) != 2 || cfg.Feeds[0].Name != "easyberry" || cfg.Feeds[1].Name != "packets" {
		t.Fatalf("feeds = %+v", cfg.Feeds)
	}
	if cfg.LogFile != filepath.Join(cfg.DataDir, "berrymon.log") {
		t.Fatalf("log_file = %q", cfg.LogFile)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dir := t.TempDir()
	path := writeConfig(t, `backend:
  base_url: "http://pi.local:8000/api/v1"
  username: admin
  timeout: 3s
poll:
  data_interval: 500ms
data_dir: "`+dir+`"
feeds:
  - name: modbus
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LoadedFrom != path {
		t.Fatalf("LoadedFrom = %q", cfg.LoadedFrom)
	}
	if cfg.Backend.BaseURL != "http://pi.local:8000/api/v1" || cfg.Backend.Username != "admin" {
		t.Fatalf("backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 3*time.Second || cfg.Poll.DataInterval != 500*time.Millisecond {
		t.Fatalf("durations = %v %v", cfg.Backend.Timeout, cfg.Poll.DataInterval)
	}
	if cfg.Poll.StatusInterval != 2*time.Second {
		t.Fatalf("status_interval not defaulted: %v", cfg.Poll.StatusInterval)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].BatchPath != "/debug/modbus" {
		t.Fatalf("feeds = %+v", cfg.Feeds)
	}
	if cfg.DataDir != dir {
		t.Fatalf("data_dir = %q", cfg.DataDir)
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, " secret ")
	cfg, err := Load(writeConfig(t, "backend:\n  token: from-file\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.Token != "secret" {
		t.Fatalf("token = %q", cfg.Backend.Token)
	}
	if got := cfg.BackendClientConfig().Token; got != "secret" {
		t.Fatalf("client token = %q", got)
	}
}

func TestLoadRejectsDuplicateFeeds(t *testing.T) {
	t.Setenv(TokenEnv, "")
	_, err := Load(writeConfig(t, "feeds:\n  - name: a\n  - name: a\n"))
	if err == nil {
		t.Fatal("expected duplicate feed error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOverridesWin(t *testing.T) {
	t.Setenv(TokenEnv, "")
	dir := t.TempDir()
	path := writeConfig(t, "backend:\n  base_url: http://file\n")

	cfg, err := LoadWith(path, Overrides{BaseURL: "http://flag", DataDir: dir})
	if err != nil {
		t.Fatalf("LoadWith() error: %v", err)
	}
	if cfg.Backend.BaseURL != "http://flag" {
		t.Fatalf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.LogFile != filepath.Join(dir, "berrymon.log") {
		t.Fatalf("log_file should follow the overridden data_dir, got %q", cfg.LogFile)
	}
}
