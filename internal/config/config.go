package config

import (
	"RedWire/internal/engine/graph"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds the live capture settings.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	ReadTimeout string `yaml:"read_timeout"`
	StopTimeout string `yaml:"stop_timeout"`
}

// PipelineConfig holds the ingestion settings.
type PipelineConfig struct {
	// LocalAddresses are highlighted as local hosts in graph views. When
	// empty, the address of the interface holding the default route is used.
	LocalAddresses []string `yaml:"local_addresses"`
}

// APIConfig holds the listen addresses of the HTTP and gRPC servers.
type APIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// NATSConfig holds the event fan-out settings.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// GeoConfig holds the geolocation lookup settings.
type GeoConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

// GobConfig holds settings for the gob writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// ClickHouseConfig holds settings for the ClickHouse writer.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines a single snapshot writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// ExportConfig lists the snapshot writers.
type ExportConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig       `yaml:"capture"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	API      APIConfig           `yaml:"api"`
	NATS     NATSConfig          `yaml:"nats"`
	Geo      GeoConfig           `yaml:"geo"`
	Export   ExportConfig        `yaml:"export"`
	Layout   graph.LayoutOptions `yaml:"layout"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapshotLen: 1600,
			Promiscuous: true,
			ReadTimeout: "500ms",
			StopTimeout: "1s",
		},
		API: APIConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "redwire",
		},
		Geo: GeoConfig{
			Endpoint: "http://ip-api.com/json",
			Timeout:  "5s",
		},
		Layout: graph.DefaultLayoutOptions(),
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Keys missing from the file keep their default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every duration parses.
func (c *Config) Validate() error {
	durations := map[string]string{
		"capture.read_timeout": c.Capture.ReadTimeout,
		"capture.stop_timeout": c.Capture.StopTimeout,
		"geo.timeout":          c.Geo.Timeout,
	}
	for i, w := range c.Export.Writers {
		if w.Enabled {
			durations[fmt.Sprintf("export.writers[%d].snapshot_interval", i)] = w.SnapshotInterval
		}
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
	}
	return nil
}

// ReadTimeoutDuration returns the live capture read timeout.
func (c CaptureConfig) ReadTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.ReadTimeout)
}

// StopTimeoutDuration returns how long a stop request waits for the worker.
func (c CaptureConfig) StopTimeoutDuration() time.Duration {
	return parseDurationOrZero(c.StopTimeout)
}

// TimeoutDuration returns the per-lookup timeout.
func (c GeoConfig) TimeoutDuration() time.Duration {
	return parseDurationOrZero(c.Timeout)
}

// parseDurationOrZero parses a duration already checked by Validate. Invalid
// or empty values yield zero so callers fall back to their own default.
func parseDurationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
