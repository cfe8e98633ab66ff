package config

import "time"

// Config represents the complete milestone-hook configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Webhook WebhookConfig `yaml:"webhook"`
	Tracker TrackerConfig `yaml:"tracker"`

	// SourcePath is the absolute path of the loaded config file.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// PIDFile, when set, holds an instance lock while the server runs.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// WebhookConfig defines the inbound webhook listener.
type WebhookConfig struct {
	Listen          string `yaml:"listen"`
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size,omitempty"`
}

// TrackerConfig defines how the issue tracker (GitHub) is reached.
type TrackerConfig struct {
	BaseURL string `yaml:"base_url"`

	// Token is a personal or fine-grained access token. Ignored when App is set.
	Token string `yaml:"token,omitempty"`

	// AppName is the client identifier sent as the User-Agent.
	AppName string `yaml:"app_name"`

	Label                string        `yaml:"label"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxConcurrentUpdates int           `yaml:"max_concurrent_updates"`

	App *AppConfig `yaml:"app,omitempty"`
}

// AppConfig holds GitHub App credentials used instead of a static token.
type AppConfig struct {
	AppID          string `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Default values
const (
	DefaultListen          = "127.0.0.1:8081"
	DefaultPath            = "/api/milestones"
	DefaultSignatureHeader = "X-Hub-Signature"
	DefaultLabel           = "Needs Attention!"
	DefaultBaseURL         = "https://api.github.com/"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "milestone-hook",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Webhook: WebhookConfig{
			Listen:          DefaultListen,
			Path:            DefaultPath,
			SignatureHeader: DefaultSignatureHeader,
			MaxBodySize:     "1MB",
		},
		Tracker: TrackerConfig{
			BaseURL:              DefaultBaseURL,
			AppName:              "milestone-hook",
			Label:                DefaultLabel,
			Timeout:              10 * time.Second,
			MaxConcurrentUpdates: 4,
		},
	}
}
