package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FromFile(t *testing.T) {
	content := `
server:
  port: 9000
  cors_origins: ["http://localhost:5173"]
storage:
  slide_dir: "/data/slides"
  import_dir: "/data/import"
viewer:
  save: true
  colors: ["red", "green"]
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.SlideDir != "/data/slides" {
		t.Errorf("unexpected slide_dir: %s", cfg.Storage.SlideDir)
	}
	if cfg.Storage.ImportDir != "/data/import" {
		t.Errorf("unexpected import_dir: %s", cfg.Storage.ImportDir)
	}
	if !cfg.Viewer.Save {
		t.Error("expected save enabled")
	}
	if len(cfg.Viewer.Colors) != 2 || cfg.Viewer.Colors[0] != "red" {
		t.Errorf("unexpected colors: %v", cfg.Viewer.Colors)
	}
}

func TestLoad_FiltersUnknownColors(t *testing.T) {
	cfg := loadFromString(t, "viewer:\n  colors: [\"red\", \"chartreuse\", \"blue\"]\n")
	if len(cfg.Viewer.Colors) != 2 || cfg.Viewer.Colors[0] != "red" || cfg.Viewer.Colors[1] != "blue" {
		t.Errorf("unexpected colors: %v", cfg.Viewer.Colors)
	}

	cfg = loadFromString(t, "viewer:\n  colors: [\"chartreuse\"]\n")
	if len(cfg.Viewer.Colors) != 7 {
		t.Errorf("expected palette fallback, got %v", cfg.Viewer.Colors)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg := loadFromString(t, "server:\n  port: 0\n")

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.SlideDir != "/iv-store" {
		t.Errorf("expected default slide_dir, got %s", cfg.Storage.SlideDir)
	}
	if cfg.Storage.TmpDir != "/tmp" {
		t.Errorf("expected default tmp_dir, got %s", cfg.Storage.TmpDir)
	}
	if cfg.Tools.DUPath != "/usr/bin/du" {
		t.Errorf("expected default du_path, got %s", cfg.Tools.DUPath)
	}
	if cfg.Viewer.Save {
		t.Error("expected save disabled by default")
	}
	if len(cfg.Viewer.Colors) != 7 {
		t.Errorf("expected 7 default colors, got %d", len(cfg.Viewer.Colors))
	}
	if cfg.Cache.TileSizeMB != 256 {
		t.Errorf("expected default tile cache size 256, got %d", cfg.Cache.TileSizeMB)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IV_SLIDE_DIR", "/env/slides")
	t.Setenv("IV_SAVE", "true")
	t.Setenv("IV_PORT", "8123")
	t.Setenv("IV_COLORS", "cyan, magenta")

	cfg := loadFromString(t, "storage:\n  slide_dir: \"/yaml/slides\"\n")

	if cfg.Storage.SlideDir != "/env/slides" {
		t.Errorf("expected env override to win, got %s", cfg.Storage.SlideDir)
	}
	if !cfg.Viewer.Save {
		t.Error("expected IV_SAVE=true to enable save")
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("expected port 8123, got %d", cfg.Server.Port)
	}
	if len(cfg.Viewer.Colors) != 2 || cfg.Viewer.Colors[1] != "magenta" {
		t.Errorf("unexpected colors: %v", cfg.Viewer.Colors)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(":\t not yaml ["), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
