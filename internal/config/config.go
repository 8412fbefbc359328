// Package config loads the doccapture YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/detector"
)

// Config holds runtime configuration. Fields may be loaded from a YAML file
// and overridden by command-line flags.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Detection detector.Config `yaml:"detection"`
	Crop      crop.Options    `yaml:"crop"`
	Store     StoreConfig     `yaml:"store"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Upload    UploadConfig    `yaml:"upload"`
	Log       LogConfig       `yaml:"log"`
	Tray      bool            `yaml:"tray"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	// StreamQuality is the JPEG quality of the live overlay stream.
	StreamQuality int `yaml:"stream_quality"`
}

type CameraConfig struct {
	// Device is a device index or path. Empty picks the stored selection,
	// then a back-facing camera, then the first one found.
	Device string `yaml:"device"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type UploadConfig struct {
	// URL receives each document as a multipart POST. Empty disables uploads.
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Retries int               `yaml:"retries"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          "127.0.0.1:8090",
			StaticDir:     "web",
			StreamQuality: 70,
		},
		Detection: detector.DefaultConfig(),
		Crop:      crop.DefaultOptions(),
		Store:     StoreConfig{Path: "doccapture.db"},
		Plugins:   PluginsConfig{Dir: "plugins", TimeoutMs: 5000},
		Upload:    UploadConfig{Timeout: 30 * time.Second, Retries: 2},
		Log:       LogConfig{Level: "info"},
	}
}

// Validate clamps host settings to safe ranges and reports detection
// settings that cannot work.
func (c *Config) Validate() error {
	def := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.StreamQuality <= 0 || c.Server.StreamQuality > 100 {
		c.Server.StreamQuality = def.Server.StreamQuality
	}
	if c.Crop.JPEGQuality <= 0 || c.Crop.JPEGQuality > 100 {
		c.Crop.JPEGQuality = def.Crop.JPEGQuality
	}
	if c.Crop.PreviewQuality <= 0 || c.Crop.PreviewQuality > 100 {
		c.Crop.PreviewQuality = def.Crop.PreviewQuality
	}
	if c.Crop.ManualInset < 0 {
		c.Crop.ManualInset = def.Crop.ManualInset
	}
	if c.Crop.HandleRadius <= 0 {
		c.Crop.HandleRadius = def.Crop.HandleRadius
	}
	if c.Crop.PreviewHeightRatio <= 0 || c.Crop.PreviewHeightRatio > 1 {
		c.Crop.PreviewHeightRatio = def.Crop.PreviewHeightRatio
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Plugins.TimeoutMs <= 0 {
		c.Plugins.TimeoutMs = def.Plugins.TimeoutMs
	}
	if c.Upload.Timeout <= 0 {
		c.Upload.Timeout = def.Upload.Timeout
	}
	if c.Upload.Retries < 0 {
		c.Upload.Retries = 0
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	return nil
}

// Load reads configuration from the YAML file at path. A missing file yields
// Default(). Keys absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path in YAML format.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
