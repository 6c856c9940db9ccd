package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nanodb/nanodb/internal/dblog"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load of a missing file should not error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanodb.yaml")
	yamlBody := "data_dir: /var/lib/nanodb\npage_size: 8192\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/nanodb" {
		t.Fatalf("expected data_dir to be overridden, got %s", cfg.DataDir)
	}
	if cfg.PageSize != 8192 {
		t.Fatalf("expected page_size to be overridden, got %d", cfg.PageSize)
	}
	if cfg.BufferPoolPages != Defaults().BufferPoolPages {
		t.Fatalf("expected buffer_pool_pages to keep its default, got %d", cfg.BufferPoolPages)
	}
}

func TestDBLogConfigMapsLevels(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "debug"
	cfg.Log.JSON = true

	got := cfg.DBLogConfig()
	if got.Level != dblog.DebugLevel {
		t.Fatalf("expected DebugLevel, got %v", got.Level)
	}
	if !got.JSONOutput {
		t.Fatalf("expected JSONOutput to carry through")
	}
}
