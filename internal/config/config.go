// Package config handles configuration loading for the spatial dataset server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Datasets []DatasetConfig `yaml:"datasets"`
	Cache    CacheConfig     `yaml:"cache"`
	Render   RenderConfig    `yaml:"render"`
	Spill    SpillConfig     `yaml:"spill"`
	Ingest   IngestConfig    `yaml:"ingest"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
	Metrics     *bool    `yaml:"metrics"`
}

// MetricsEnabled reports whether /metrics is served. Defaults to true.
func (s ServerConfig) MetricsEnabled() bool {
	return s.Metrics == nil || *s.Metrics
}

// DatasetConfig describes one dataset converted at start-up.
type DatasetConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	Path string `yaml:"path"`

	// VPTOutputs is absent, a directory, or a mapping of
	// cell_by_gene/cell_metadata/cell_boundaries to files. MERSCOPE only.
	VPTOutputs interface{} `yaml:"vpt_outputs"`
	ReadTIF    *bool       `yaml:"read_tif"`

	// CoordinateSystem names the Visium coordinate system.
	CoordinateSystem string `yaml:"coordinate_system"`
}

// ReadTIFEnabled reports whether mosaic images are read. Defaults to true.
func (d DatasetConfig) ReadTIFEnabled() bool {
	return d.ReadTIF == nil || *d.ReadTIF
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB        int `yaml:"tile_size_mb"`
	TileTTLMinutes    int `yaml:"tile_ttl_minutes"`
	PlaneCacheEntries int `yaml:"plane_cache_entries"`
}

// TileTTL returns the tile lifetime.
func (c CacheConfig) TileTTL() time.Duration {
	return time.Duration(c.TileTTLMinutes) * time.Minute
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize        int    `yaml:"tile_size"`
	DefaultColormap string `yaml:"default_colormap"`
}

// SpillConfig controls where transcript chunks live.
type SpillConfig struct {
	// Dir holds compressed chunks on disk; empty keeps them in memory.
	Dir       string `yaml:"dir"`
	ChunkRows int    `yaml:"chunk_rows"`
}

// IngestConfig contains ingest job settings.
type IngestConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Title:       "spatialdata-io",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			TileSizeMB:        256,
			TileTTLMinutes:    10,
			PlaneCacheEntries: 64,
		},
		Render: RenderConfig{
			TileSize:        256,
			DefaultColormap: "viridis",
		},
		Spill: SpillConfig{
			ChunkRows: 1 << 16,
		},
		Ingest: IngestConfig{
			SQLitePath:    "./data/ingest.sqlite",
			MaxConcurrent: 1,
			RetentionDays: 7,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.PlaneCacheEntries == 0 {
		cfg.Cache.PlaneCacheEntries = defaults.Cache.PlaneCacheEntries
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Spill.ChunkRows == 0 {
		cfg.Spill.ChunkRows = defaults.Spill.ChunkRows
	}
	if cfg.Ingest.SQLitePath == "" {
		cfg.Ingest.SQLitePath = defaults.Ingest.SQLitePath
	}
	if cfg.Ingest.MaxConcurrent == 0 {
		cfg.Ingest.MaxConcurrent = defaults.Ingest.MaxConcurrent
	}
	if cfg.Ingest.RetentionDays == 0 {
		cfg.Ingest.RetentionDays = defaults.Ingest.RetentionDays
	}
	for i := range cfg.Datasets {
		if cfg.Datasets[i].Type == "" {
			cfg.Datasets[i].Type = "auto"
		}
	}
}

// Validate checks dataset entries.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Datasets))
	for i, ds := range c.Datasets {
		if ds.ID == "" {
			return fmt.Errorf("dataset %d has no id", i)
		}
		if seen[ds.ID] {
			return fmt.Errorf("duplicate dataset id %q", ds.ID)
		}
		seen[ds.ID] = true
		if ds.Path == "" {
			return fmt.Errorf("dataset %q has no path", ds.ID)
		}
		switch ds.Type {
		case "auto", "merscope", "visium":
		default:
			return fmt.Errorf("dataset %q has unknown type %q", ds.ID, ds.Type)
		}
	}
	return nil
}

// DatasetIDs returns dataset ids in configuration order.
func (c *Config) DatasetIDs() []string {
	ids := make([]string, len(c.Datasets))
	for i, ds := range c.Datasets {
		ids[i] = ds.ID
	}
	return ids
}

// DefaultDataset returns the first configured dataset id, or "".
func (c *Config) DefaultDataset() string {
	if len(c.Datasets) == 0 {
		return ""
	}
	return c.Datasets[0].ID
}
