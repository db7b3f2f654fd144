package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// DateLayout is the calendar date format used for configured date ranges.
const DateLayout = "2006-01-02"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backup      BackupConfig      `toml:"backup"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	API         APIConfig         `toml:"api"`
	Logging     LoggingConfig     `toml:"logging"`
}

// BackupConfig describes where media lands and which capture dates are synced.
type BackupConfig struct {
	Directory string `toml:"directory"`
	StartDate string `toml:"start_date"`
	EndDate   string `toml:"end_date"`
	Organize  bool   `toml:"organize"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Google GoogleConfig `toml:"google"`
}

// GoogleConfig contains the OAuth client used against the Photos Library API.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// APIConfig tunes the remote catalog client.
type APIConfig struct {
	BaseURL           string   `toml:"base_url"`
	PageSize          int      `toml:"page_size"`
	AlbumPageSize     int      `toml:"album_page_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	MaxAttempts       int      `toml:"max_attempts"`
	BackoffBase       Duration `toml:"backoff_base"`
	BackoffCap        Duration `toml:"backoff_cap"`
	Timeout           Duration `toml:"timeout"`
}

// LoggingConfig controls verbosity and the optional log file.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Duration decodes TOML strings such as "4s" into a [time.Duration].
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the values a sync depends on.
func (c *Config) Validate() error {
	if c.Backup.Directory == "" {
		return fmt.Errorf("%w: backup.directory is required", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	start, err := time.Parse(DateLayout, c.Backup.StartDate)
	if err != nil {
		return fmt.Errorf("%w: backup.start_date %q is not YYYY-MM-DD", ErrInvalidConfig, c.Backup.StartDate)
	}
	end, err := time.Parse(DateLayout, c.Backup.EndDate)
	if err != nil {
		return fmt.Errorf("%w: backup.end_date %q is not YYYY-MM-DD", ErrInvalidConfig, c.Backup.EndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: backup.end_date is before backup.start_date", ErrInvalidConfig)
	}

	if c.API.PageSize < 1 || c.API.PageSize > 100 {
		return fmt.Errorf("%w: api.page_size must be between 1 and 100", ErrInvalidConfig)
	}
	if c.API.AlbumPageSize < 1 || c.API.AlbumPageSize > 50 {
		return fmt.Errorf("%w: api.album_page_size must be between 1 and 50", ErrInvalidConfig)
	}
	if c.API.MaxAttempts < 1 {
		return fmt.Errorf("%w: api.max_attempts must be at least 1", ErrInvalidConfig)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses the configured log level, defaulting to info.
func (c *Config) LogLevel() (log.Level, error) {
	if c.Logging.Level == "" {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return level, nil
}

// LockPath is the path of the single-instance lock file kept next to the ledger.
func (c *Config) LockPath() string {
	return c.Database.Path + ".lock"
}
