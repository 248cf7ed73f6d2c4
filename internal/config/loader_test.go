package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/aiprof/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "aiprof.yaml")
	writeFile(t, path, `
server:
  log_level: warn
store:
  driver: sqlite
  sqlite_path: `+filepath.Join(dir, "state.db")+`
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Store.Driver != config.StoreSQLite {
		t.Errorf("store.driver: got %q, want sqlite", cfg.Store.Driver)
	}
}

func TestLoad_ErrorMentionsPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error should mention file path, got: %v", err)
	}
}

func TestValidate_UnknownProviderIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: my-private-llm
  capture:
    name: alsa-direct
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestStoreDriver_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver config.StoreDriver
		want   bool
	}{
		{config.StoreMemory, true},
		{config.StoreRedis, true},
		{config.StorePostgres, true},
		{config.StoreSQLite, true},
		{"", false},
		{"etcd", false},
	}
	for _, tt := range tests {
		if got := tt.driver.IsValid(); got != tt.want {
			t.Errorf("StoreDriver(%q).IsValid() = %v, want %v", tt.driver, got, tt.want)
		}
	}
}
