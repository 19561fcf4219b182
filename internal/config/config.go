// Package config loads settings from defaults, an optional YAML file, and
// environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix maps REDOPSYNC_EVIDENCE_DIR to evidence_dir and so on.
const envPrefix = "REDOPSYNC_"

// Config holds everything the server and CLI need at startup.
type Config struct {
	DBPath      string `koanf:"db_path"`
	EvidenceDir string `koanf:"evidence_dir"`
	ListenAddr  string `koanf:"listen_addr"`
	LogLevel    string `koanf:"log_level"`
}

func defaults() map[string]any {
	return map[string]any{
		"db_path":      "redopsync.db",
		"evidence_dir": "evidence",
		"listen_addr":  ":8080",
		"log_level":    "info",
	}
}

// Load builds the effective configuration. A missing config file is skipped
// silently; an unreadable or malformed one is an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("check config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
