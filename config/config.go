package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/lexandro/assetref-mcp/index"
)

// FileName is the project-local configuration file.
const FileName = ".assetref.toml"

// Config is the process configuration. Relative paths are resolved against Root.
type Config struct {
	Root      string `toml:"root"`
	AssetRoot string `toml:"asset_root"`
	DataDir   string `toml:"data_dir"`

	IndexFile     string `toml:"index_file"`
	ChangeLogFile string `toml:"change_log_file"`

	// RipgrepPath selects the external search tool; empty uses the in-process searcher.
	RipgrepPath string `toml:"ripgrep_path"`

	Extensions   []string `toml:"extensions"`
	TokenPattern string   `toml:"token_pattern"`
	MatchPrefix  string   `toml:"match_prefix"`
	Exclude      []string `toml:"exclude"`
	// Types adds or overrides extension to type tag mappings, e.g. ".shader" = "Shader".
	Types map[string]string `toml:"types"`

	Workers              int `toml:"workers"`
	DrainIntervalSeconds int `toml:"drain_interval_seconds"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		AssetRoot:            "Assets",
		DataDir:              ".assetref",
		IndexFile:            "guidMap.json",
		ChangeLogFile:        "assetChangeLog.txt",
		Extensions:           []string{".prefab", ".unity", ".mat", ".asset", ".anim", ".controller", ".overrideController", ".playable"},
		TokenPattern:         index.DefaultTokenPattern,
		MatchPrefix:          index.DefaultMatchPrefix,
		Workers:              0,
		DrainIntervalSeconds: 30,
		LogLevel:             "info",
	}
}

// Load reads <root>/.assetref.toml over the defaults. A missing file is not an error.
func Load(root string) (Config, error) {
	cfg := Default()
	path := filepath.Join(root, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.Root = root
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Root == "" {
		cfg.Root = root
	}
	return cfg, nil
}

// Validate checks the fields a running process depends on.
func (c Config) Validate() error {
	if c.Root == "" {
		return errors.New("root cannot be empty")
	}
	if len(c.Extensions) == 0 {
		return errors.New("extensions cannot be empty")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	for ext, t := range c.Types {
		if !strings.HasPrefix(ext, ".") || t == "" {
			return fmt.Errorf("invalid type mapping %q = %q", ext, t)
		}
	}
	if _, err := regexp.Compile(c.TokenPattern); err != nil {
		return fmt.Errorf("invalid token_pattern: %w", err)
	}
	if c.MatchPrefix == "" {
		return errors.New("match_prefix cannot be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.DrainIntervalSeconds < 0 {
		return fmt.Errorf("drain_interval_seconds must not be negative, got %d", c.DrainIntervalSeconds)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// DataPath returns the absolute data directory.
func (c Config) DataPath() string {
	return c.resolve(c.DataDir)
}

// IndexPath returns the absolute path of the persisted reference index.
func (c Config) IndexPath() string {
	return filepath.Join(c.DataPath(), c.IndexFile)
}

// ChangeLogPath returns the absolute path of the pending change log.
func (c Config) ChangeLogPath() string {
	return filepath.Join(c.DataPath(), c.ChangeLogFile)
}

// AssetPath returns the absolute asset root.
func (c Config) AssetPath() string {
	return c.resolve(c.AssetRoot)
}

// LogPath returns the log file, defaulting to assetref-mcp.log in the data directory.
func (c Config) LogPath() string {
	if c.LogFile == "" {
		return filepath.Join(c.DataPath(), "assetref-mcp.log")
	}
	return c.resolve(c.LogFile)
}

func (c Config) resolve(path string) string {
	if path == "" {
		return c.Root
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, path)
}
