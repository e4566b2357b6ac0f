package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that no config file exists in the searched directories.
var ErrNotFound = errors.New("config not found")

// Config path constants used by the CLI and loaders.
const (
	ConfigDirName  = ".irmemo"
	ConfigFileName = "config.yml"
)

// ConfigDir returns the .irmemo directory under the project root.
func ConfigDir(root string) string {
	return filepath.Join(root, ConfigDirName)
}

// ConfigPath returns the full config file path under the project root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), ConfigFileName)
}

// RootFromConfigPath derives the project root from a config file path.
func RootFromConfigPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if filepath.Base(dir) == ConfigDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// FindConfigPath walks from startDir (or the working directory) toward the
// filesystem root and returns the first .irmemo/config.yml it meets.
func FindConfigPath(startDir string) (string, error) {
	start := strings.TrimSpace(startDir)
	if start == "" {
		start = "."
	}
	start, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}
	for dir := start; ; dir = filepath.Dir(dir) {
		path, ok, err := configIn(dir)
		if err != nil || ok {
			return path, err
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("%w: no %s in %s or its parents", ErrNotFound, filepath.Join(ConfigDirName, ConfigFileName), start)
		}
	}
}

// configIn checks one directory. A bare .irmemo directory without a config
// file stops the search instead of silently using a parent project.
func configIn(dir string) (string, bool, error) {
	path := ConfigPath(dir)
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return "", false, fmt.Errorf("config path %q is a directory", path)
	case err == nil:
		return path, true, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", false, fmt.Errorf("stat config path %q: %w", path, err)
	}
	if info, err := os.Stat(ConfigDir(dir)); err == nil && info.IsDir() {
		return "", false, fmt.Errorf("found %q but %s is missing", ConfigDir(dir), ConfigFileName)
	}
	return "", false, nil
}

// ResolvePath anchors a relative path at the project root.
func ResolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
