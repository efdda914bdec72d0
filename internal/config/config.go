// Package config loads jsonkv's startup configuration: the data directory,
// shard count, and the set of indexed fields, from a YAML file with flag
// overrides layered on by the cmd/jsonkv CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IndexType is the kind of a secondary index.
type IndexType string

const (
	IndexNumeric IndexType = "Numeric"
	IndexString  IndexType = "String"
)

// Valid reports whether t is a known index type.
func (t IndexType) Valid() bool {
	switch t {
	case IndexNumeric, IndexString:
		return true
	default:
		return false
	}
}

// FieldSpec names one indexed field: a dotted JSON path and its kind.
type FieldSpec struct {
	Field     string    `yaml:"field"`
	IndexType IndexType `yaml:"index_type"`
}

// Config is the full startup configuration for a jsonkv server.
type Config struct {
	DataDir       string      `yaml:"data_dir"`
	NumShards     uint32      `yaml:"num_shards"`
	Addr          string      `yaml:"addr"`
	MetricsAddr   string      `yaml:"metrics_addr"`
	IndexedFields []FieldSpec `yaml:"indexed_fields"`
}

// Default returns the zero-config defaults: one shard directory under the
// current working directory, default shard count, and default bind address.
func Default() Config {
	return Config{
		DataDir:   "./data",
		NumShards: 8,
		Addr:      "127.0.0.1:8080",
	}
}

// Load reads and parses a YAML config file at path. A missing file is not
// an error; the caller gets Default() back unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for fatal startup errors: an unknown
// index_type is InvalidIndexType and must abort startup (spec §7.4).
func (c Config) Validate() error {
	if c.NumShards == 0 {
		return fmt.Errorf("num_shards must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	seen := make(map[string]bool, len(c.IndexedFields))
	for _, f := range c.IndexedFields {
		if f.Field == "" {
			return fmt.Errorf("indexed_fields: empty field path")
		}
		if !f.IndexType.Valid() {
			return fmt.Errorf("indexed_fields: %s: invalid index_type %q", f.Field, f.IndexType)
		}
		if seen[f.Field] {
			return fmt.Errorf("indexed_fields: duplicate field %q", f.Field)
		}
		seen[f.Field] = true
	}
	return nil
}
