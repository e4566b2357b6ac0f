package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"irmemo/internal/archive"
	"irmemo/internal/config"
	"irmemo/internal/logging"
	"irmemo/internal/stream"
)

// env is the loaded configuration and resources shared by run commands.
type env struct {
	cfg    config.Config
	root   string
	log    *log.Logger
	closer io.Closer
}

// resolveConfigPath normalizes a config path or finds it from the working directory.
func resolveConfigPath(configPath string) (string, error) {
	if strings.TrimSpace(configPath) == "" {
		return config.FindConfigPath("")
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}

// loadConfig reads the config file. A missing file falls back to defaults
// rooted at the working directory unless --config named one explicitly.
func loadConfig(flags *globalFlags) (config.Config, string, error) {
	path, err := resolveConfigPath(flags.configPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) && flags.configPath == "" {
			wd, wdErr := os.Getwd()
			if wdErr != nil {
				return config.Config{}, "", fmt.Errorf("get working directory: %w", wdErr)
			}
			return config.Default(), wd, nil
		}
		return config.Config{}, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, config.RootFromConfigPath(path), nil
}

// newEnv loads config. Logging is discarded until startLogging runs.
func newEnv(flags *globalFlags) (*env, error) {
	cfg, root, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, root: root, log: log.New(io.Discard)}, nil
}

// startLogging builds the logger. Logs go to stderr unless the live UI owns
// the terminal, in which case only a log file receives them.
func (e *env) startLogging(flags *globalFlags, stderr io.Writer, liveUI bool) error {
	level := e.cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	file := e.cfg.Log.File
	if flags.logFile != "" {
		file = flags.logFile
	}
	opts := logging.Options{Level: level, File: config.ResolvePath(e.root, file)}
	if !liveUI {
		opts.Writer = stderr
	}
	logger, closer, err := logging.New(opts)
	if err != nil {
		return err
	}
	e.log, e.closer = logger, closer
	return nil
}

func (e *env) Close() {
	if e.closer != nil {
		_ = e.closer.Close()
	}
}

// client builds the backend stream client.
func (e *env) client() (*stream.Client, error) {
	return stream.NewClient(e.cfg.Backend.BaseURL, nil, e.log)
}

// archivePath returns the archive location anchored at the project root.
func (e *env) archivePath() string {
	return config.ResolvePath(e.root, e.cfg.Archive.Path)
}

// openArchive opens the run archive, or returns nil when archiving is off.
func (e *env) openArchive(ctx context.Context, disabled bool) (*archive.Store, error) {
	if disabled || !e.cfg.Archive.On() {
		return nil, nil
	}
	store, err := archive.Open(ctx, e.archivePath())
	if err != nil {
		return nil, err
	}
	e.log.Debug("archive open", "path", e.archivePath())
	return store, nil
}
