package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigDirEnv overrides config discovery.
const ConfigDirEnv = "MILESTONE_HOOK_CONFIG_DIR"

// Load reads and parses configuration from a file or a directory containing config.yaml.
// Files covered by a .checksums manifest are verified before the config is returned.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadUnverified is Load without the checksum step. config lock uses it to
// re-authorize files whose pinned hashes no longer match.
func LoadUnverified(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, verify bool) (*Config, error) {
	absPath, err := ResolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)

	if verify {
		if err := VerifyChecksums(filepath.Dir(absPath), IntegrityFiles(cfg)); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ResolveConfigFile turns a file or directory path into the absolute path of the config file.
func ResolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $MILESTONE_HOOK_CONFIG_DIR, ~/.config/milestone-hook, /etc/milestone-hook, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "milestone-hook")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/milestone-hook"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	localConfigPath := "./config.yaml"
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/milestone-hook, /etc/milestone-hook, ./config.yaml)", ConfigDirEnv)
}

// IntegrityFiles lists the files whose hashes are pinned by config lock.
func IntegrityFiles(cfg *Config) []string {
	var files []string
	if cfg.SourcePath != "" {
		files = append(files, cfg.SourcePath)
	}
	if cfg.Tracker.App != nil && cfg.Tracker.App.PrivateKeyPath != "" {
		files = append(files, cfg.Tracker.App.PrivateKeyPath)
	}
	return files
}

// loadConfigFile loads and parses a single config file on top of Defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Tracker.App != nil && cfg.Tracker.App.PrivateKeyPath != "" &&
		!filepath.IsAbs(cfg.Tracker.App.PrivateKeyPath) {
		cfg.Tracker.App.PrivateKeyPath = filepath.Join(filepath.Dir(path), cfg.Tracker.App.PrivateKeyPath)
	}

	if cfg.Service.PIDFile != "" && !filepath.IsAbs(cfg.Service.PIDFile) {
		cfg.Service.PIDFile = filepath.Join(filepath.Dir(path), cfg.Service.PIDFile)
	}

	return cfg, nil
}

// applyConfigDefaults merges default values into config where explicitly blanked.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = defaults.Webhook.Listen
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = defaults.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = defaults.Webhook.SignatureHeader
	}

	if cfg.Tracker.BaseURL == "" {
		cfg.Tracker.BaseURL = defaults.Tracker.BaseURL
	}
	if !strings.HasSuffix(cfg.Tracker.BaseURL, "/") {
		cfg.Tracker.BaseURL += "/"
	}
	if cfg.Tracker.AppName == "" {
		cfg.Tracker.AppName = defaults.Tracker.AppName
	}
	if cfg.Tracker.Label == "" {
		cfg.Tracker.Label = defaults.Tracker.Label
	}
	if cfg.Tracker.Timeout == 0 {
		cfg.Tracker.Timeout = defaults.Tracker.Timeout
	}
	if cfg.Tracker.MaxConcurrentUpdates == 0 {
		cfg.Tracker.MaxConcurrentUpdates = defaults.Tracker.MaxConcurrentUpdates
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// unresolvedEnv reports an error if value still holds a ${VAR} placeholder.
func unresolvedEnv(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be one of: json, text (got %q)", cfg.Service.LogFormat)
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/' (got %q)", cfg.Webhook.Path)
	}
	if cfg.Webhook.Secret == "" {
		return errors.New("webhook.secret is required")
	}
	if err := unresolvedEnv("webhook.secret", cfg.Webhook.Secret); err != nil {
		return err
	}

	u, err := url.Parse(cfg.Tracker.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("tracker.base_url must be an absolute http(s) URL (got %q)", cfg.Tracker.BaseURL)
	}
	if cfg.Tracker.Timeout <= 0 {
		return errors.New("tracker.timeout must be positive")
	}
	if cfg.Tracker.MaxConcurrentUpdates < 1 {
		return errors.New("tracker.max_concurrent_updates must be at least 1")
	}

	if app := cfg.Tracker.App; app != nil {
		if app.AppID == "" {
			return errors.New("tracker.app.app_id is required")
		}
		if err := unresolvedEnv("tracker.app.app_id", app.AppID); err != nil {
			return err
		}
		if app.InstallationID <= 0 {
			return errors.New("tracker.app.installation_id must be positive")
		}
		if app.PrivateKeyPath == "" {
			return errors.New("tracker.app.private_key_path is required")
		}
		return nil
	}

	if cfg.Tracker.Token == "" {
		return errors.New("tracker.token is required when tracker.app is not configured")
	}
	return unresolvedEnv("tracker.token", cfg.Tracker.Token)
}
