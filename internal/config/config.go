// Package config loads the backend's runtime tunables: bitmap cache size,
// AIO queue depth, direct-I/O preference, and the default block size used
// by `create`. None of these affect on-disk format, only how aggressively
// this process caches and pipelines I/O against it.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the tunables read from vhd-config.yaml (or VHD_* env vars).
type Config struct {
	// CacheSize is the number of bitmap-cache entries held in memory at once.
	CacheSize int `mapstructure:"cache_size"`

	// DataReqs bounds the data-request pool (component A). One slot is
	// consumed per in-flight data read/write.
	DataReqs int `mapstructure:"data_reqs"`

	// AIOQueueDepth bounds how many iocbs internal/aio.Context will hold
	// in flight at once, standing in for the kernel AIO context's fixed
	// io_setup event capacity.
	AIOQueueDepth int `mapstructure:"aio_queue_depth"`

	// AIOWorkers is the size of the worker pool that executes submitted
	// iocbs against the backing file.
	AIOWorkers int `mapstructure:"aio_workers"`

	// DirectIO opens image files with O_DIRECT when the platform supports
	// it. Sector buffers must then be page-aligned (see internal/aio).
	DirectIO bool `mapstructure:"direct_io"`

	// DefaultBlockSizeBytes is the block size `create` uses when the
	// caller doesn't specify one. 2 MiB is the VHD-spec-common value.
	DefaultBlockSizeBytes int `mapstructure:"default_block_size_bytes"`
}

// Load reads vhd-config.yaml from the usual search paths, falling back to
// defaults when no file is present. A missing config file is not an error.
func Load() (*Config, error) {
	viper.SetConfigName("vhd-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.vhd")
	viper.AddConfigPath("/etc/vhd")

	viper.SetDefault("cache_size", 32)
	viper.SetDefault("data_reqs", 256)
	viper.SetDefault("aio_queue_depth", 64)
	viper.SetDefault("aio_workers", 4)
	viper.SetDefault("direct_io", false)
	viper.SetDefault("default_block_size_bytes", 2*1024*1024)

	viper.SetEnvPrefix("VHD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the zero-config defaults without touching the
// filesystem or environment, for tests and library callers that don't
// want implicit config-file discovery.
func Default() *Config {
	return &Config{
		CacheSize:             32,
		DataReqs:              256,
		AIOQueueDepth:         64,
		AIOWorkers:            4,
		DirectIO:              false,
		DefaultBlockSizeBytes: 2 * 1024 * 1024,
	}
}

func (c *Config) validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.DataReqs <= 0 {
		return fmt.Errorf("data_reqs must be positive, got %d", c.DataReqs)
	}
	if c.AIOQueueDepth <= 0 {
		return fmt.Errorf("aio_queue_depth must be positive, got %d", c.AIOQueueDepth)
	}
	if c.AIOWorkers <= 0 {
		return fmt.Errorf("aio_workers must be positive, got %d", c.AIOWorkers)
	}
	if c.DefaultBlockSizeBytes <= 0 || c.DefaultBlockSizeBytes%512 != 0 {
		return fmt.Errorf("default_block_size_bytes must be a positive multiple of 512, got %d", c.DefaultBlockSizeBytes)
	}
	return nil
}
