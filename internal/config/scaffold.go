package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfig = `version: 1
backend:
  base_url: "http://localhost:8000"

run:
  analyst: ""
  company: "MS"
  sections: [bio, forecast, earnings, peer, valuation]

ui:
  mode: auto
  no_color: false

log:
  level: info
  file: ""

archive:
  path: ".irmemo/archive.duckdb"
  enabled: true

relay:
  addr: ""
  max_messages_per_second: 10
`

// Scaffold writes the default config file, refusing to overwrite.
func Scaffold(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is required")
	}
	if info, err := os.Stat(configPath); err == nil {
		if info.IsDir() {
			return fmt.Errorf("config path %q is a directory", configPath)
		}
		return fmt.Errorf("config file already exists at %q", configPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
