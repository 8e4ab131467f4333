package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Expected memory store by default, got %s", cfg.Store.Driver)
	}
	if cfg.Identifiers.Strategy != "integer" || cfg.Identifiers.GlobalUnique {
		t.Errorf("Unexpected identifier defaults: %+v", cfg.Identifiers)
	}
	if cfg.BOM.InheritancePolicy != "nearest" {
		t.Errorf("Expected nearest policy by default, got %s", cfg.BOM.InheritancePolicy)
	}
	if cfg.Locking.TTL != 30*time.Second {
		t.Errorf("Expected 30s lock TTL, got %s", cfg.Locking.TTL)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Expected localhost:6379, got %s", cfg.Redis.Addr())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  driver: sqlite
  path: /tmp/build.db
identifiers:
  strategy: prefixed
  prefix: ENG
  width: 5
bom:
  inheritance_policy: farthest
locking:
  driver: redis
  max_wait: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("BUILDCORE_SERIAL_GLOBALLY_UNIQUE", "true")
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/tmp/build.db" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
	if cfg.Identifiers.Prefix != "ENG" || cfg.Identifiers.Width != 5 {
		t.Errorf("Unexpected identifier config: %+v", cfg.Identifiers)
	}
	if !cfg.Identifiers.GlobalUnique {
		t.Error("Expected environment to enable global uniqueness")
	}
	if cfg.BOM.InheritancePolicy != "farthest" {
		t.Errorf("Expected farthest policy, got %s", cfg.BOM.InheritancePolicy)
	}
	if cfg.Locking.MaxWait != 2*time.Second {
		t.Errorf("Expected 2s max wait, got %s", cfg.Locking.MaxWait)
	}
	if cfg.Redis.Host != "redis.internal" {
		t.Errorf("Expected REDIS_HOST override, got %s", cfg.Redis.Host)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected unknown store driver to be rejected")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected explicit missing config file to be an error")
	}
}
