package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteDefault when the target file exists and
// force is false.
var ErrExists = errors.New("config file already exists")

const redacted = "********"

// DefaultYAML renders the default configuration as YAML.
func DefaultYAML() ([]byte, error) {
	out, err := yaml.Marshal(Settings(New()))
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	return out, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// Settings returns the effective settings of v for display, with durations
// as strings and secrets masked.
func Settings(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	normalize(settings)
	if c, ok := settings["cache"].(map[string]any); ok {
		if r, ok := c["redis"].(map[string]any); ok {
			if pw, _ := r["password"].(string); pw != "" {
				r["password"] = redacted
			}
		}
	}
	return settings
}

// normalize rewrites durations as "30s" strings so the file reads back
// through viper's duration decoding.
func normalize(m map[string]any) {
	for k, val := range m {
		switch t := val.(type) {
		case time.Duration:
			m[k] = t.String()
		case map[string]any:
			normalize(t)
		}
	}
}
