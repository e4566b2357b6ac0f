package config

// Config is the contents of .irmemo/config.yml.
type Config struct {
	Version int           `yaml:"version"`
	Backend BackendConfig `yaml:"backend"`
	Run     RunConfig     `yaml:"run"`
	UI      UIConfig      `yaml:"ui"`
	Log     LogConfig     `yaml:"log"`
	Archive ArchiveConfig `yaml:"archive"`
	Relay   RelayConfig   `yaml:"relay"`
}

type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// RunConfig holds the defaults for generate.
type RunConfig struct {
	Analyst  string   `yaml:"analyst"`
	Company  string   `yaml:"company"`
	Sections []string `yaml:"sections"`
}

type UIConfig struct {
	Mode    string `yaml:"mode"`
	NoColor bool   `yaml:"no_color"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ArchiveConfig controls the DuckDB run archive. Enabled is a pointer so an
// omitted key can default to true.
type ArchiveConfig struct {
	Path    string `yaml:"path"`
	Enabled *bool  `yaml:"enabled"`
}

// On reports whether archiving is enabled.
func (a ArchiveConfig) On() bool {
	return a.Enabled == nil || *a.Enabled
}

type RelayConfig struct {
	Addr                 string  `yaml:"addr"`
	MaxMessagesPerSecond float64 `yaml:"max_messages_per_second"`
}
