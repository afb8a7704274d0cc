// Package config loads the rowdb YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sushant-115/rowdb/pkg/logger"
	"github.com/sushant-115/rowdb/pkg/telemetry"
)

// DirMode is the permission of a data directory created by rowdb.
const DirMode = 0700

// StorageConfig locates the data file.
type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	Filename string `yaml:"filename"`
	// BackupRateBytes caps the .backup copy rate in bytes per second.
	// Zero or less means unthrottled.
	BackupRateBytes int64 `yaml:"backup_rate_bytes"`
}

// Config is the whole configuration file.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Storage   StorageConfig    `yaml:"storage"`
}

func DefaultConfig() *Config {
	return &Config{
		Logger: logger.DefaultConfig(),
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      "rowdb",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
		Storage: StorageConfig{
			DataDir:         ".",
			Filename:        "rowdb.db",
			BackupRateBytes: 8 << 20,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Storage.Filename == "" {
		return errors.New("storage.filename must not be empty")
	}
	if filepath.Base(c.Storage.Filename) != c.Storage.Filename {
		return fmt.Errorf("storage.filename %q must not contain a directory", c.Storage.Filename)
	}
	if c.Telemetry.PrometheusPort < 0 || c.Telemetry.PrometheusPort > 65535 {
		return fmt.Errorf("telemetry.prometheus_port %d out of range", c.Telemetry.PrometheusPort)
	}
	return nil
}

// DataPath is the data file location.
func (c *Config) DataPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.Filename)
}

// EnsureDataDir creates the data directory with DirMode if it is missing.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.Storage.DataDir, DirMode); err != nil {
		return fmt.Errorf("create data dir %s: %w", c.Storage.DataDir, err)
	}
	return nil
}
