package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "FOOTPRINT_CONFIG"
	// ConfigFileName is looked for in the working directory
	ConfigFileName = "footprint.yaml"
	// ConfigDirName is the per-application directory under each XDG base
	ConfigDirName = "footprint"
	// DatabaseFileName is the scan database inside the data directory
	DatabaseFileName = "footprint.db"
)

// Locator resolves where footprint reads its config and keeps its state,
// following the XDG base directory layout. Relative XDG variables are
// ignored, as the XDG spec requires.
type Locator struct {
	Fs      afero.Fs
	Getenv  func(string) string
	Workdir string
}

// OSLocator reads the process environment and the real filesystem
func OSLocator() Locator {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return Locator{Fs: afero.NewOsFs(), Getenv: os.Getenv, Workdir: wd}
}

// appDir returns $env/footprint, else $HOME/fallback/footprint, else ""
func (l Locator) appDir(env string, fallback ...string) string {
	if dir := l.Getenv(env); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, ConfigDirName)
	}
	if home := l.Getenv("HOME"); home != "" {
		return filepath.Join(append(append([]string{home}, fallback...), ConfigDirName)...)
	}
	return ""
}

// ConfigDir is $XDG_CONFIG_HOME/footprint or ~/.config/footprint
func (l Locator) ConfigDir() string {
	return l.appDir("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/footprint or ~/.local/share/footprint
func (l Locator) DataDir() string {
	return l.appDir("XDG_DATA_HOME", ".local", "share")
}

// CacheDir is $XDG_CACHE_HOME/footprint or ~/.cache/footprint. Without a
// home directory it falls back to ./cache.
func (l Locator) CacheDir() string {
	if dir := l.appDir("XDG_CACHE_HOME", ".cache"); dir != "" {
		return dir
	}
	return filepath.Join(l.Workdir, "cache")
}

// DatabasePath is footprint.db in the data directory, or in the working
// directory when there is no home.
func (l Locator) DatabasePath() string {
	if dir := l.DataDir(); dir != "" {
		return filepath.Join(dir, DatabaseFileName)
	}
	return filepath.Join(l.Workdir, DatabaseFileName)
}

// Candidates lists the config files Find tries, highest priority first:
// $FOOTPRINT_CONFIG, ./footprint.yaml, the XDG config dir, /etc/footprint.
func (l Locator) Candidates() []string {
	var paths []string
	if explicit := l.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths, filepath.Join(l.Workdir, ConfigFileName))
	if dir := l.ConfigDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// Find returns the first candidate that is a regular file, or "".
func (l Locator) Find() string {
	for _, path := range l.Candidates() {
		if info, err := l.Fs.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// NewConfigPath is where `config init` writes when no path is given
func (l Locator) NewConfigPath() string {
	if dir := l.ConfigDir(); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return filepath.Join(l.Workdir, ConfigFileName)
}
