package nativedeps

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed assets/config.default.json
var defaultConfig []byte

// DefaultConfig returns the embedded default configuration document.
func DefaultConfig() []byte {
	return append([]byte(nil), defaultConfig...)
}

// WriteDefaultConfig writes the embedded configuration into dir as
// config.default.json. An existing file is only replaced when force is set.
func WriteDefaultConfig(dir string, force bool) (string, error) {
	dest := filepath.Join(dir, DefaultConfigFile)
	if fileExists(dest) && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", dest)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, defaultConfig, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}
