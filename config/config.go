package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Config holds the locked operational parameters of the control panel backend.
// A Config is loaded once at start-up and handed to every component by value.
type Config struct {
	// Port is the only port the API may listen on.
	Port int `yaml:"port"`
	// ListenHost is the interface the API binds to.
	ListenHost string `yaml:"listen_host"`
	// AllowedHost is the Host header every request must carry.
	AllowedHost string `yaml:"allowed_host"`
	// APIBaseURL is the public URL the frontend talks to.
	APIBaseURL string `yaml:"api_base_url"`
	// APIBasePath is the router prefix every endpoint is mounted under.
	APIBasePath string `yaml:"api_base_path"`
	// AllowedOrigin is the single origin CORS accepts.
	AllowedOrigin string `yaml:"allowed_origin"`
	// BaseDir is the root directory all file access is restricted to.
	BaseDir string `yaml:"base_dir"`
	// MaxBackupVersions is the retention cap per backed-up file.
	MaxBackupVersions int `yaml:"max_backup_versions"`
	// LockDir holds the <name>.lock files used to serialise operations.
	LockDir string `yaml:"lock_dir"`
	// LogDir receives the JSON log file. Empty disables file logging.
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`
}

const (
	errNotAbsolute = "%s must be an absolute path, got %q"
)

// Validate reports the first setting that would make the guards meaningless.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MaxBackupVersions < 1 {
		return fmt.Errorf("max_backup_versions must be at least 1, got %d", c.MaxBackupVersions)
	}
	if c.BaseDir == "" {
		return errors.New("base_dir must be set")
	}
	if !filepath.IsAbs(c.BaseDir) {
		return fmt.Errorf(errNotAbsolute, "base_dir", c.BaseDir)
	}
	if c.LockDir == "" {
		return errors.New("lock_dir must be set")
	}
	if !filepath.IsAbs(c.LockDir) {
		return fmt.Errorf(errNotAbsolute, "lock_dir", c.LockDir)
	}
	if c.LogDir != "" && !filepath.IsAbs(c.LogDir) {
		return fmt.Errorf(errNotAbsolute, "log_dir", c.LogDir)
	}
	return nil
}
