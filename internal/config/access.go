package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// Redacted returns a copy of the config with secret material masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Webhook.Secret != "" {
		out.Webhook.Secret = redacted
	}
	if out.Tracker.Token != "" {
		out.Tracker.Token = redacted
	}
	if c.Tracker.App != nil {
		app := *c.Tracker.App
		out.Tracker.App = &app
	}
	return &out
}

// RedactedMap returns the redacted configuration keyed by its YAML field names.
func (c *Config) RedactedMap() (map[string]any, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// GetPath retrieves a value from the redacted configuration using a dot-notation path.
func (c *Config) GetPath(path string) (any, error) {
	m, err := c.RedactedMap()
	if err != nil {
		return nil, err
	}
	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
