// Package config provides the run configuration for imgfetch: defaults,
// validation, and the optional YAML or TOML configuration file with
// per-host request settings.
package config
