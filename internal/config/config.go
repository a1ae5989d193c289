package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Store contains request store timing and batching settings.
type Store struct {
	SubmitTimeoutSeconds  int `toml:"submit_timeout_seconds"`
	ResetBatchSize        int `toml:"reset_batch_size"`
	ResetTicketTTLSeconds int `toml:"reset_ticket_ttl_seconds"`
}

// Admin contains the operator gate. The PIN is a convenience, not a security
// boundary.
type Admin struct {
	PIN string `toml:"pin"`
}

// Archive contains configuration for the spreadsheet backup sink.
type Archive struct {
	Enabled               bool   `toml:"enabled"`
	SpreadsheetID         string `toml:"spreadsheet_id"`
	SheetName             string `toml:"sheet_name"`
	CredentialsFile       string `toml:"credentials_file"`
	BaseURL               string `toml:"base_url"`
	MaxAttempts           int    `toml:"max_attempts"`
	RatePerMinute         int    `toml:"rate_per_minute"`
	QueueSize             int    `toml:"queue_size"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Player contains the command used to open a performance track.
type Player struct {
	OpenCommand    string `toml:"open_command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stagequeue.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Store: submission timeout and reset batching
//   - Admin: operator PIN
//   - Archive: Google Sheets backup of new requests
//   - Player: external command that opens a performance track
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Store   Store   `toml:"store"`
	Admin   Admin   `toml:"admin"`
	Archive Archive `toml:"archive"`
	Player  Player  `toml:"player"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stagequeue.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the request database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "requests.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "stagequeued.lock")
}

// SubmitTimeout bounds how long a submission waits for the store.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Store.SubmitTimeoutSeconds) * time.Second
}

// ResetTicketTTL bounds how long an armed reset waits for confirmation.
func (c *Config) ResetTicketTTL() time.Duration {
	return time.Duration(c.Store.ResetTicketTTLSeconds) * time.Second
}

// ArchiveRequestTimeout bounds a single spreadsheet append.
func (c *Config) ArchiveRequestTimeout() time.Duration {
	return time.Duration(c.Archive.RequestTimeoutSeconds) * time.Second
}

// PlayerTimeout bounds the open command.
func (c *Config) PlayerTimeout() time.Duration {
	return time.Duration(c.Player.TimeoutSeconds) * time.Second
}

// APIBaseURL returns the HTTP base URL clients use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := c.Paths.APIBind
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
// The file is replaced atomically so an interrupted write never leaves a
// truncated config behind.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := atomic.WriteFile(path, strings.NewReader(sampleConfig)); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
