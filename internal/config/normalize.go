package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultCompany     = "MS"
	DefaultUIMode      = "auto"
	DefaultLogLevel    = "info"
	DefaultArchivePath = ".irmemo/archive.duckdb"
	DefaultRelayRate   = 10
)

// DefaultSections are the memo sections generated when none are configured.
var DefaultSections = []string{"bio", "forecast", "earnings", "peer", "valuation"}

// Normalize fills defaults and trims values in place.
func Normalize(cfg *Config) {
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	cfg.Run.Analyst = strings.TrimSpace(cfg.Run.Analyst)
	if strings.TrimSpace(cfg.Run.Company) == "" {
		cfg.Run.Company = DefaultCompany
	}
	sections := make([]string, 0, len(cfg.Run.Sections))
	for _, section := range cfg.Run.Sections {
		if trimmed := strings.ToLower(strings.TrimSpace(section)); trimmed != "" {
			sections = append(sections, trimmed)
		}
	}
	if len(sections) == 0 {
		sections = append(sections, DefaultSections...)
	}
	cfg.Run.Sections = sections
	cfg.UI.Mode = strings.ToLower(strings.TrimSpace(cfg.UI.Mode))
	if cfg.UI.Mode == "" {
		cfg.UI.Mode = DefaultUIMode
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if strings.TrimSpace(cfg.Archive.Path) == "" {
		cfg.Archive.Path = DefaultArchivePath
	}
	if cfg.Relay.MaxMessagesPerSecond == 0 {
		cfg.Relay.MaxMessagesPerSecond = DefaultRelayRate
	}
}
