// Package vcsconfig loads vcsfs configuration from environment variables
// (and an optional YAML override file), mirroring the teacher's
// pkg/config package: a single Config struct, a LoadFromEnv constructor,
// and a Validate pass run before the config is used.
//
// Example Usage:
//
//	cfg := vcsconfig.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package vcsconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the node-revision storage implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
)

// EOLStyle is the set of recognized svn:eol-style values (spec.md §3.4, §4.4.3).
type EOLStyle string

const (
	EOLNone  EOLStyle = "none"
	EOLNative EOLStyle = "native"
	EOLCR    EOLStyle = "CR"
	EOLLF    EOLStyle = "LF"
	EOLCRLF  EOLStyle = "CRLF"
	EOLFixed EOLStyle = "fixed"
)

func validEOLStyle(s EOLStyle) bool {
	switch s {
	case EOLNone, EOLNative, EOLCR, EOLLF, EOLCRLF, EOLFixed:
		return true
	}
	return false
}

// Config holds all vcsfs configuration.
type Config struct {
	// FSBackend selects the node-revision store implementation.
	FSBackend Backend
	// DataDir is the directory backing the badger store (when FSBackend == BackendBadger).
	DataDir string

	// WCLockTimeout bounds how long the file installer's wcadm.Acquire
	// call waits for the adm/lock file.
	WCLockTimeout time.Duration

	// DiffCmd is the external diff program invoked by the file installer (spec.md §6).
	// Empty means: use the in-process go-difflib fallback.
	DiffCmd string
	// PatchCmd is the external patch program invoked by the file installer.
	// Empty means: use the in-process hunk applier (unified.go).
	PatchCmd string

	// EOLStyleDefault is used when a file has no svn:eol-style property.
	EOLStyleDefault EOLStyle

	// UseCommitTimes is loaded from VCSFS_USE_COMMIT_TIMES, but nothing
	// reads it: installed working files keep their install-time mtime
	// whatever its value.
	UseCommitTimes bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		FSBackend:       BackendMemory,
		DataDir:         "./data",
		WCLockTimeout:   30 * time.Second,
		DiffCmd:         "diff",
		PatchCmd:        "patch",
		EOLStyleDefault: EOLNone,
		UseCommitTimes:  false,
	}
}

// LoadFromEnv builds a Config from VCSFS_* environment variables layered
// over DefaultConfig, then over an optional vcsfs.yaml file named by
// VCSFS_CONFIG_FILE.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if path := os.Getenv("VCSFS_CONFIG_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	cfg.FSBackend = Backend(getEnv("VCSFS_FS_BACKEND", string(cfg.FSBackend)))
	cfg.DataDir = getEnv("VCSFS_DATA_DIR", cfg.DataDir)
	cfg.WCLockTimeout = getEnvDuration("VCSFS_WC_LOCK_TIMEOUT", cfg.WCLockTimeout)
	cfg.DiffCmd = getEnv("VCSFS_DIFF_CMD", cfg.DiffCmd)
	cfg.PatchCmd = getEnv("VCSFS_PATCH_CMD", cfg.PatchCmd)
	cfg.EOLStyleDefault = EOLStyle(getEnv("VCSFS_EOL_STYLE_DEFAULT", string(cfg.EOLStyleDefault)))
	cfg.UseCommitTimes = getEnvBool("VCSFS_USE_COMMIT_TIMES", cfg.UseCommitTimes)

	return cfg
}

// Validate rejects configurations the rest of vcsfs cannot act on.
func (c *Config) Validate() error {
	switch c.FSBackend {
	case BackendMemory, BackendBadger:
	default:
		return fmt.Errorf("unknown fs backend: %q", c.FSBackend)
	}

	if c.FSBackend == BackendBadger && c.DataDir == "" {
		return fmt.Errorf("badger backend requires a data dir")
	}

	if !validEOLStyle(c.EOLStyleDefault) {
		return fmt.Errorf("unknown eol style: %q", c.EOLStyleDefault)
	}

	if c.WCLockTimeout <= 0 {
		return fmt.Errorf("wc lock timeout must be positive")
	}

	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{FSBackend: %s, DataDir: %s, EOLDefault: %s}",
		c.FSBackend, c.DataDir, c.EOLStyleDefault)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes" || v == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
