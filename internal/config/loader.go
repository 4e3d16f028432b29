package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".imgfetch.yaml"

// xdgConfigFile is the file name looked up inside XDGConfigDir.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile loads a configuration file. Files ending in ".toml" are
// decoded as TOML, everything else as YAML.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	if cf.Hosts == nil {
		cf.Hosts = make(map[string]HostConfig)
	} else {
		normalized := make(map[string]HostConfig, len(cf.Hosts))
		for host, hc := range cf.Hosts {
			normalized[strings.ToLower(host)] = hc
		}
		cf.Hosts = normalized
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .imgfetch.yaml (or .imgfetch.toml) in the current directory
// 3. Look for config.yaml (or config.toml) in the XDG config directory
// 4. Look for .imgfetch.yaml (or .imgfetch.toml) in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, withTOML(filepath.Join(cwd, DefaultConfigFile))...)
	}
	candidates = append(candidates, withTOML(filepath.Join(XDGConfigDir(), xdgConfigFile))...)
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, withTOML(filepath.Join(home, DefaultConfigFile))...)
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// withTOML returns the YAML path followed by its TOML sibling.
func withTOML(yamlPath string) []string {
	return []string{yamlPath, strings.TrimSuffix(yamlPath, ".yaml") + ".toml"}
}
