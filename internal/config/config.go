// Package config handles configuration loading for the ImmunoView server.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/immunoview/server/pkg/palette"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Tools   ToolsConfig   `yaml:"tools"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig contains the slide, import and scratch roots.
type StorageConfig struct {
	SlideDir  string `yaml:"slide_dir"`
	ImportDir string `yaml:"import_dir"`
	TmpDir    string `yaml:"tmp_dir"`
}

// ToolsConfig contains paths to the external disk utilities.
type ToolsConfig struct {
	DUPath string `yaml:"du_path"`
	RMPath string `yaml:"rm_path"`
}

// ViewerConfig contains client-facing viewer settings.
type ViewerConfig struct {
	Save   bool     `yaml:"save"`
	Colors []string `yaml:"colors"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB          int `yaml:"tile_size_mb"`
	TileTTLMinutes      int `yaml:"tile_ttl_minutes"`
	DescriptorCacheSize int `yaml:"descriptor_cache_size"`
}

// Load reads configuration from a YAML file, then applies IV_* environment
// overrides on top. A missing file yields the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	filterColors(cfg)

	return cfg, nil
}

// filterColors drops viewer colors the palette cannot blend. An empty
// survivor list falls back to the full palette.
func filterColors(cfg *Config) {
	kept := cfg.Viewer.Colors[:0]
	for _, name := range cfg.Viewer.Colors {
		if palette.Known(name) {
			kept = append(kept, name)
		} else {
			log.Printf("Ignoring unknown viewer color %q", name)
		}
	}
	cfg.Viewer.Colors = kept
	if len(cfg.Viewer.Colors) == 0 {
		cfg.Viewer.Colors = palette.Default()
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			SlideDir:  "/iv-store",
			ImportDir: "/iv-import",
			TmpDir:    "/tmp",
		},
		Tools: ToolsConfig{
			DUPath: "/usr/bin/du",
			RMPath: "/usr/bin/rm",
		},
		Viewer: ViewerConfig{
			Save:   false,
			Colors: palette.Default(),
		},
		Cache: CacheConfig{
			TileSizeMB:          256,
			TileTTLMinutes:      10,
			DescriptorCacheSize: 256,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Storage.SlideDir == "" {
		cfg.Storage.SlideDir = defaults.Storage.SlideDir
	}
	if cfg.Storage.ImportDir == "" {
		cfg.Storage.ImportDir = defaults.Storage.ImportDir
	}
	if cfg.Storage.TmpDir == "" {
		cfg.Storage.TmpDir = defaults.Storage.TmpDir
	}
	if cfg.Tools.DUPath == "" {
		cfg.Tools.DUPath = defaults.Tools.DUPath
	}
	if cfg.Tools.RMPath == "" {
		cfg.Tools.RMPath = defaults.Tools.RMPath
	}
	if len(cfg.Viewer.Colors) == 0 {
		cfg.Viewer.Colors = defaults.Viewer.Colors
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.DescriptorCacheSize == 0 {
		cfg.Cache.DescriptorCacheSize = defaults.Cache.DescriptorCacheSize
	}
}

// applyEnv overrides settings from IV_* environment variables, matching the
// environment contract of existing deployments.
func applyEnv(cfg *Config) {
	if v := os.Getenv("IV_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("IV_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IV_SLIDE_DIR"); v != "" {
		cfg.Storage.SlideDir = v
	}
	if v := os.Getenv("IV_IMPORT_DIR"); v != "" {
		cfg.Storage.ImportDir = v
	}
	if v := os.Getenv("IV_TMP_DIR"); v != "" {
		cfg.Storage.TmpDir = v
	}
	if v := os.Getenv("IV_DU_LOC"); v != "" {
		cfg.Tools.DUPath = v
	}
	if v := os.Getenv("IV_RM_LOC"); v != "" {
		cfg.Tools.RMPath = v
	}
	if v := os.Getenv("IV_SAVE"); v != "" {
		if save, err := strconv.ParseBool(v); err == nil {
			cfg.Viewer.Save = save
		}
	}
	if v := os.Getenv("IV_COLORS"); v != "" {
		colors := make([]string, 0, 8)
		for _, c := range strings.Split(v, ",") {
			c = strings.TrimSpace(c)
			if c != "" {
				colors = append(colors, c)
			}
		}
		if len(colors) > 0 {
			cfg.Viewer.Colors = colors
		}
	}
}
