package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScaffoldThenLoad(t *testing.T) {
	root := t.TempDir()
	path := ConfigPath(root)
	if err := Scaffold(path); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load scaffold: %v", err)
	}
	if cfg.Backend.BaseURL != DefaultBaseURL || cfg.Run.Company != "MS" {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if len(cfg.Run.Sections) != 5 || !cfg.Archive.On() {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if err := Scaffold(path); err == nil {
		t.Fatalf("expected scaffold to refuse overwrite")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("version: 1\nbackend:\n  url: x\n"))
	if err == nil || !strings.Contains(err.Error(), "url") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestParseRejectsMultipleDocuments(t *testing.T) {
	_, err := Parse([]byte("version: 1\n---\nversion: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "multiple YAML documents") {
		t.Fatalf("expected multiple documents error, got %v", err)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{Version: 1, Backend: BackendConfig{BaseURL: " https://memo.example.com/ "}, Run: RunConfig{Sections: []string{" Bio ", ""}}}
	Normalize(&cfg)
	if cfg.Backend.BaseURL != "https://memo.example.com" {
		t.Fatalf("unexpected base url %q", cfg.Backend.BaseURL)
	}
	if len(cfg.Run.Sections) != 1 || cfg.Run.Sections[0] != "bio" {
		t.Fatalf("unexpected sections %v", cfg.Run.Sections)
	}
	if cfg.UI.Mode != "auto" || cfg.Log.Level != "info" || cfg.Relay.MaxMessagesPerSecond != DefaultRelayRate {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateCollectsAllIssues(t *testing.T) {
	disabled := false
	cfg := Config{
		Version: 2,
		Backend: BackendConfig{BaseURL: "ftp://host"},
		Run:     RunConfig{Sections: []string{"bio", "bio", "weather", "all"}},
		UI:      UIConfig{Mode: "fancy"},
		Log:     LogConfig{Level: "loud"},
		Archive: ArchiveConfig{Enabled: &disabled},
		Relay:   RelayConfig{MaxMessagesPerSecond: -1},
	}
	Normalize(&cfg)
	err := Validate(&cfg)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, issue := range validation.Issues {
		fields[issue.Field] = true
	}
	for _, want := range []string{"version", "backend.base_url", "run.sections[1]", "run.sections[2]", "run.sections[3]", "ui.mode", "log.level", "relay.max_messages_per_second"} {
		if !fields[want] {
			t.Fatalf("missing issue for %s in %v", want, err)
		}
	}
	if cfg.Archive.On() {
		t.Fatalf("expected archive disabled")
	}
}

func TestValidateAcceptsAllSections(t *testing.T) {
	cfg := Config{Version: 1, Run: RunConfig{Sections: []string{"all"}}}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected all to validate, got %v", err)
	}
}

func TestFindConfigPathWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := Scaffold(ConfigPath(root)); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	found, err := FindConfigPath(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if RootFromConfigPath(found) != root {
		t.Fatalf("unexpected root %q", RootFromConfigPath(found))
	}
	if got := ResolvePath(root, DefaultArchivePath); got != filepath.Join(root, ".irmemo", "archive.duckdb") {
		t.Fatalf("unexpected archive path %q", got)
	}
}

func TestFindConfigPathMissing(t *testing.T) {
	_, err := FindConfigPath(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadNamesTheFileInValidationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("version: 1\nui:\n  mode: fancy\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Path != path {
		t.Fatalf("expected validation error for %s, got %v", path, err)
	}
	if !strings.Contains(err.Error(), "ui.mode: unsupported mode") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	if _, err := Parse([]byte("  \n")); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}
