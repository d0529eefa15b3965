// Package config loads layered configuration (defaults, config file,
// environment variables) into a typed Config struct via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration struct. Field tags use
// mapstructure for viper unmarshalling.
type Config struct {
	Cache      CacheConfig      `mapstructure:"cache"`
	Prefetcher PrefetcherConfig `mapstructure:"prefetcher"`
	Git        GitConfig        `mapstructure:"git"`
}

// CacheConfig configures the on-disk revision cache.
type CacheConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	MaxSegmentSizeBytes int    `mapstructure:"max_segment_size_bytes"`
}

// PrefetcherConfig configures the prefetch worker pools. Zero for
// either worker count means "derive from CPU count" per §4.4.
type PrefetcherConfig struct {
	MetaWorkers   int `mapstructure:"meta_workers"`
	DiffWorkers   int `mapstructure:"diff_workers"`
	MetaBatchSize int `mapstructure:"meta_batch_size"`
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// GitConfig configures the subprocess backend.
type GitConfig struct {
	ExecutablePath string `mapstructure:"executable_path"`
}

// Load builds a viper instance seeded with defaults, optionally
// reading configPath (if non-empty; viper auto-detects .yaml/.json/
// .toml), and overlaying PEPPERSTATS_* environment variables, then
// unmarshals into a Config.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PEPPERSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.root_dir", ".pepperstats-cache")
	v.SetDefault("cache.max_segment_size_bytes", 4*1024*1024)
	v.SetDefault("prefetcher.meta_workers", 0)
	v.SetDefault("prefetcher.diff_workers", 0)
	v.SetDefault("prefetcher.meta_batch_size", 128)
	v.SetDefault("prefetcher.queue_capacity", 4096)
	v.SetDefault("git.executable_path", "")
}
