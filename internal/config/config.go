// Package config loads the server configuration from TOML, applies
// environment overrides and derives the catalog's memory profile.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"legato/internal/catalog"
)

// Config represents the application configuration
type Config struct {
	Library LibraryConfig `toml:"library"`
	Catalog CatalogConfig `toml:"catalog"`
	Watcher WatcherConfig `toml:"watcher"`
	Logging LoggingConfig `toml:"logging"`
}

// LibraryConfig contains media library configuration
type LibraryConfig struct {
	Roots            []string `toml:"roots"`
	SupportedFormats []string `toml:"supported_formats"`
	ExcludePatterns  []string `toml:"exclude_patterns"`
	FollowSymlinks   bool     `toml:"follow_symlinks"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// CatalogConfig contains storage engine and memory profile configuration
type CatalogConfig struct {
	DataDir               string `toml:"data_dir"`
	RAMCacheLimitMB       uint64 `toml:"ram_cache_limit_mb"`
	RAMIndexLimitMB       uint64 `toml:"ram_index_limit_mb"`
	RAMMetadataLimitMB    uint64 `toml:"ram_metadata_limit_mb"`
	BatchSize             int    `toml:"batch_size"`
	InitialDataFileMB     uint64 `toml:"initial_data_file_mb"`
	FileGrowthIncrementMB uint64 `toml:"file_growth_increment_mb"`
	SyncFrequencySeconds  int    `toml:"sync_frequency_seconds"`
	EnableWAL             bool   `toml:"enable_wal"`
	AutoScalePerformance  bool   `toml:"auto_scale_performance"`
	TargetMemoryMB        uint64 `toml:"target_memory_mb"`
}

// WatcherConfig contains filesystem watcher configuration
type WatcherConfig struct {
	Enabled               bool `toml:"enabled"`
	DebounceWindowSeconds int  `toml:"debounce_window_seconds"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Roots:            []string{"./media"},
			SupportedFormats: []string{".flac", ".mp3", ".wav", ".m4a"},
			ExcludePatterns:  []string{},
			FollowSymlinks:   false,
			ScanOnStartup:    true,
		},
		Catalog: CatalogConfig{
			DataDir:               "./catalog",
			RAMCacheLimitMB:       4,
			RAMIndexLimitMB:       1,
			RAMMetadataLimitMB:    1,
			BatchSize:             100000,
			InitialDataFileMB:     1,
			FileGrowthIncrementMB: 10,
			SyncFrequencySeconds:  5,
			EnableWAL:             true,
			AutoScalePerformance:  false,
			TargetMemoryMB:        6,
		},
		Watcher: WatcherConfig{
			Enabled:               true,
			DebounceWindowSeconds: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating the file with
// defaults when it does not exist, then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides folds ZEROCOPY_* environment variables over the loaded
// values. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v, ok := envUint("ZEROCOPY_CACHE_MB"); ok {
		c.Catalog.RAMCacheLimitMB = v
	}
	if v, ok := envUint("ZEROCOPY_INDEX_SIZE"); ok {
		c.Catalog.RAMIndexLimitMB = v
	}
	if v, ok := envUint("ZEROCOPY_BATCH_SIZE"); ok {
		c.Catalog.BatchSize = int(v)
	}
	if v, ok := envUint("ZEROCOPY_INITIAL_FILE_SIZE_MB"); ok {
		c.Catalog.InitialDataFileMB = v
	}
	if v, ok := envUint("ZEROCOPY_SYNC_FREQUENCY_SECS"); ok {
		c.Catalog.SyncFrequencySeconds = int(v)
	}
	if raw, ok := os.LookupEnv("ZEROCOPY_ENABLE_WAL"); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.Catalog.EnableWAL = v
		}
	}
	if v, ok := envUint("ZEROCOPY_TARGET_MEMORY_MB"); ok {
		c.Catalog.TargetMemoryMB = v
		c.Catalog.AutoScalePerformance = true
	}
}

func envUint(key string) (uint64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// memoryProfile returns the effective cache, index and metadata limits in
// bytes. Auto-scaling splits the target budget 80/15/5.
func (c *CatalogConfig) memoryProfile() (cache, index, metadata uint64) {
	const mb = 1 << 20
	if c.AutoScalePerformance && c.TargetMemoryMB > 0 {
		total := c.TargetMemoryMB * mb
		return total * 80 / 100, total * 15 / 100, total * 5 / 100
	}
	return c.RAMCacheLimitMB * mb, c.RAMIndexLimitMB * mb, c.RAMMetadataLimitMB * mb
}

// EngineOptions converts the catalog section into engine options. The index
// and metadata budgets share one accounting cap inside the engine.
func (c *Config) EngineOptions() catalog.Options {
	cache, index, metadata := c.Catalog.memoryProfile()
	const mb = 1 << 20
	return catalog.Options{
		DataDir:         c.Catalog.DataDir,
		CacheLimitBytes: cache,
		IndexLimitBytes: index + metadata,
		BatchSize:       c.Catalog.BatchSize,
		InitialFileSize: c.Catalog.InitialDataFileMB * mb,
		GrowIncrement:   c.Catalog.FileGrowthIncrementMB * mb,
		SyncFrequency:   time.Duration(c.Catalog.SyncFrequencySeconds) * time.Second,
		EnableWAL:       c.Catalog.EnableWAL,
	}
}

// DebounceWindow returns the watcher coalescing window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Watcher.DebounceWindowSeconds) * time.Second
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Legato Media Server Configuration
# This file contains all configuration options for the Legato media server.
# Edit the values below to customize your server settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Library.Roots) == 0 {
		return fmt.Errorf("at least one library root must be configured")
	}
	for _, root := range c.Library.Roots {
		if root == "" {
			return fmt.Errorf("library root cannot be empty")
		}
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported media format must be specified")
	}

	if c.Catalog.DataDir == "" {
		return fmt.Errorf("catalog data directory cannot be empty")
	}
	if c.Catalog.BatchSize < 1 {
		return fmt.Errorf("catalog batch size must be at least 1")
	}
	if c.Catalog.InitialDataFileMB < 1 {
		return fmt.Errorf("initial data file size must be at least 1 MB")
	}
	if c.Catalog.FileGrowthIncrementMB < 1 {
		return fmt.Errorf("file growth increment must be at least 1 MB")
	}
	if c.Catalog.SyncFrequencySeconds < 0 {
		return fmt.Errorf("sync frequency must not be negative")
	}
	if c.Catalog.AutoScalePerformance && c.Catalog.TargetMemoryMB < 1 {
		return fmt.Errorf("target memory must be at least 1 MB when auto-scaling")
	}

	if c.Watcher.DebounceWindowSeconds < 1 {
		return fmt.Errorf("watcher debounce window must be at least 1 second")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if a media format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Library.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
