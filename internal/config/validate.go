package config

import (
	"fmt"
	"net/url"
	"slices"
)

var (
	uiModes   = []string{"auto", "live", "plain"}
	logLevels = []string{"debug", "info", "warn", "error"}
)

// Validate reports every problem in a normalized config.
func Validate(cfg *Config) error {
	var found problems

	if cfg.Version == 0 {
		found.add("version", "is required")
	} else if cfg.Version != 1 {
		found.add("version", "unsupported version %d", cfg.Version)
	}

	validateBaseURL(cfg.Backend.BaseURL, &found)
	validateSections(cfg.Run.Sections, &found)

	if !slices.Contains(uiModes, cfg.UI.Mode) {
		found.add("ui.mode", "unsupported mode %q (expected auto, live, or plain)", cfg.UI.Mode)
	}
	if !slices.Contains(logLevels, cfg.Log.Level) {
		found.add("log.level", "unsupported level %q", cfg.Log.Level)
	}
	if cfg.Relay.MaxMessagesPerSecond < 0 {
		found.add("relay.max_messages_per_second", "must be >= 0")
	}

	return found.err()
}

func validateBaseURL(raw string, found *problems) {
	parsed, err := url.Parse(raw)
	if err != nil {
		found.add("backend.base_url", "invalid url: %v", err)
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		found.add("backend.base_url", "must use http or https")
	}
	if parsed.Host == "" {
		found.add("backend.base_url", "host is required")
	}
}

// validateSections accepts "all" alone or known, unique section ids.
func validateSections(sections []string, found *problems) {
	if len(sections) == 1 && sections[0] == "all" {
		return
	}
	seen := map[string]bool{}
	for i, section := range sections {
		field := fmt.Sprintf("run.sections[%d]", i)
		switch {
		case section == "all":
			found.add(field, `"all" cannot be combined with other sections`)
		case !slices.Contains(DefaultSections, section):
			found.add(field, "unknown section %q", section)
		case seen[section]:
			found.add(field, "duplicate section %q", section)
		}
		seen[section] = true
	}
}
