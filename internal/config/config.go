// Package config loads slackbase's configuration: built-in defaults, an
// optional JWCC (JSON-with-comments) config file, and CLI flag overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".slackbase.json"

// Config holds every option the engine and CLI need.
type Config struct {
	DBPath      string `json:"db_path"` //nolint:tagliatelle
	Serializer  string `json:"serializer,omitempty"`
	LRUCapacity int    `json:"lru_capacity,omitempty"`         //nolint:tagliatelle
	LockTimeout int    `json:"lock_timeout_seconds,omitempty"` //nolint:tagliatelle
}

// Default returns slackbase's built-in defaults.
func Default() Config {
	return Config{
		DBPath:      "slackbase.db",
		Serializer:  "plain",
		LRUCapacity: 1024,
		LockTimeout: 10,
	}
}

// Sources records which config files, if any, contributed to a loaded
// Config.
type Sources struct {
	Global  string
	Project string
}

// Overrides carries the CLI flag values that should win over any config
// file; a false "has*" flag means the corresponding flag was not set.
type Overrides struct {
	DBPath        string
	HasDBPath     bool
	Serializer    string
	HasSerializer bool
}

// Load resolves configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/slackbase/config.json or
//     ~/.config/slackbase/config.json)
//  3. Project config (.slackbase.json in workDir) or an explicit path
//  4. CLI overrides
func Load(workDir, explicitPath string, overrides Overrides, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProject(workDir, explicitPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if overrides.HasDBPath {
		cfg.DBPath = overrides.DBPath
	}

	if overrides.HasSerializer {
		cfg.Serializer = overrides.Serializer
	}

	return cfg, sources, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "slackbase", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "slackbase", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "slackbase", "config.json")
}

func loadGlobal(env []string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProject(workDir, explicitPath string) (Config, string, error) {
	path := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if explicitPath != "" {
		path = explicitPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true
	}

	cfg, loaded, err := loadFile(path)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		if mustExist {
			return Config{}, "", fmt.Errorf("config: explicit config file %s not found", path)
		}

		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("config: %s is not valid JWCC: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("config: %s is not valid JSON: %w", path, err)
	}

	return cfg, true, nil
}

// merge overlays override's non-zero fields onto base.
func merge(base, override Config) Config {
	if override.DBPath != "" {
		base.DBPath = override.DBPath
	}

	if override.Serializer != "" {
		base.Serializer = override.Serializer
	}

	if override.LRUCapacity != 0 {
		base.LRUCapacity = override.LRUCapacity
	}

	if override.LockTimeout != 0 {
		base.LockTimeout = override.LockTimeout
	}

	return base
}
