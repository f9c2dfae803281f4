package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions rejects a config file with overly permissive
// permissions. Config files may contain sensitive paths and peer topology.
// Returns an error if any group or world permission bit is set.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadNodeConfig loads node configuration from a YAML file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Default version to 1 for configs written before versioning was added.
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade radnode", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	if cfg.Proxy.Strategy == "" {
		cfg.Proxy.Strategy = "proxy"
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9091"
	}

	return &cfg, nil
}

// ValidateNodeConfig validates node configuration.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if cfg.Network.ListenAddress == "" {
		return fmt.Errorf("network.listen_address is required")
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	switch cfg.Proxy.Strategy {
	case "", "proxy", "forward":
	default:
		return fmt.Errorf("proxy.strategy %q: want \"proxy\" or \"forward\"", cfg.Proxy.Strategy)
	}
	switch cfg.Replication.DefaultFactorKind {
	case "", "must_reach", "range":
	default:
		return fmt.Errorf("replication.default_factor_kind %q: want \"must_reach\" or \"range\"", cfg.Replication.DefaultFactorKind)
	}
	if cfg.Replication.MaxFetchesPerSecond < 0 {
		return fmt.Errorf("replication.max_fetches_per_second must be >= 0, got %v", cfg.Replication.MaxFetchesPerSecond)
	}
	return nil
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory, so configs in
// ~/.config/radnode/ can reference key files and storage using relative
// paths.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
	if cfg.Storage.Path != "" && !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(configDir, cfg.Storage.Path)
	}
	if cfg.Control.SocketPath != "" && !filepath.IsAbs(cfg.Control.SocketPath) {
		cfg.Control.SocketPath = filepath.Join(configDir, cfg.Control.SocketPath)
	}
	if cfg.Control.CookiePath != "" && !filepath.IsAbs(cfg.Control.CookiePath) {
		cfg.Control.CookiePath = filepath.Join(configDir, cfg.Control.CookiePath)
	}
}

// FindConfigFile searches for a radnode config file in standard locations.
// Search order: explicitPath (if given), ./radnode.yaml,
// ~/.config/radnode/config.yaml, /etc/radnode/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		"radnode.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "radnode", "config.yaml"))
	}

	searchPaths = append(searchPaths, filepath.Join("/etc", "radnode", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'radnode init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// DefaultConfigDir returns the default radnode config directory
// (~/.config/radnode).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "radnode"), nil
}
