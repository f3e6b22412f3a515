package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.GetInt("tier.cache_ttl_ms") != 30000 {
		t.Errorf("tier.cache_ttl_ms = %d, want 30000", cfg.GetInt("tier.cache_ttl_ms"))
	}
	if cfg.GetBool("usage.enabled") != true {
		t.Errorf("usage.enabled = false, want true")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tier:\n  cache_ttl_ms: 5000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(path) error = %v", err)
	}
	if cfg.GetInt("tier.cache_ttl_ms") != 5000 {
		t.Errorf("tier.cache_ttl_ms = %d, want 5000", cfg.GetInt("tier.cache_ttl_ms"))
	}
	// unrelated defaults remain
	if cfg.GetInt("stopcond.default.max_nodes") != 20 {
		t.Errorf("stopcond.default.max_nodes = %d, want 20", cfg.GetInt("stopcond.default.max_nodes"))
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v, want nil", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MEMD_TIER_CACHE_TTL_MS", "9999")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetInt("tier.cache_ttl_ms") != 9999 {
		t.Errorf("tier.cache_ttl_ms = %d, want 9999 from env", cfg.GetInt("tier.cache_ttl_ms"))
	}
}
