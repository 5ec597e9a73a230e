package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"chatvault/internal/paths"
)

// EnvPrefix is prepended to every environment variable, e.g. CHATVAULT_VAULT_DIR.
const EnvPrefix = "CHATVAULT"

// Config holds the settings shared by the importer CLI and the HTTP server.
type Config struct {
	// Root of the notes folder all note and report paths are relative to.
	VaultDir string `envconfig:"VAULT_DIR" default:"."`

	ConversationFolder string `envconfig:"CONVERSATION_FOLDER" default:"AI Conversations"`
	ReportFolder       string `envconfig:"REPORT_FOLDER" default:"AI Conversations/Reports"`

	// Catalog and imported-archive state. Relative paths resolve against VaultDir.
	StatePath   string `envconfig:"STATE_PATH" default:".chatvault/state.json"`
	StateDriver string `envconfig:"STATE_DRIVER" default:"json"`

	DatePrefix string `envconfig:"DATE_PREFIX" default:"none"`
	TimeZone   string `envconfig:"TIME_ZONE" default:"UTC"`
	Provider   string `envconfig:"PROVIDER" default:"auto"`

	// Persist the catalog after every archive instead of only at batch end.
	IncrementalSave bool `envconfig:"INCREMENTAL_SAVE" default:"true"`

	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// New loads an optional .env file, then parses CHATVAULT_* environment variables.
func New(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns defaults rooted at dir without touching the environment.
func NewForTesting(dir string) *Config {
	return &Config{
		VaultDir:           dir,
		ConversationFolder: "AI Conversations",
		ReportFolder:       "AI Conversations/Reports",
		StatePath:          ".chatvault/state.json",
		StateDriver:        "json",
		DatePrefix:         string(paths.PrefixNone),
		TimeZone:           "UTC",
		Provider:           "auto",
		IncrementalSave:    true,
		HTTPPort:           8080,
		LogLevel:           "info",
	}
}

// Validate rejects values outside the known enums.
func (c *Config) Validate() error {
	switch c.StateDriver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unsupported STATE_DRIVER: %s", c.StateDriver)
	}
	switch c.Provider {
	case "auto", "chatgpt", "claude":
	default:
		return fmt.Errorf("unsupported PROVIDER: %s", c.Provider)
	}
	if _, err := paths.ParseDatePrefix(c.DatePrefix); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ConversationFolder == "" {
		return fmt.Errorf("CONVERSATION_FOLDER must not be empty")
	}
	return nil
}

// Location resolves TimeZone; the same location is used for the whole run.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unsupported TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// NamingOptions derives the path resolver options.
func (c *Config) NamingOptions() (paths.Options, error) {
	prefix, err := paths.ParseDatePrefix(c.DatePrefix)
	if err != nil {
		return paths.Options{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return paths.Options{}, err
	}
	return paths.Options{
		BaseFolder: c.ConversationFolder,
		DatePrefix: prefix,
		Location:   loc,
	}, nil
}

// ResolvedStatePath returns StatePath made absolute against VaultDir.
func (c *Config) ResolvedStatePath() string {
	if filepath.IsAbs(c.StatePath) {
		return c.StatePath
	}
	return filepath.Join(c.VaultDir, c.StatePath)
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Log emits the loaded configuration at debug level.
func (c *Config) Log(log zerolog.Logger) {
	log.Debug().
		Str("vault_dir", c.VaultDir).
		Str("conversation_folder", c.ConversationFolder).
		Str("report_folder", c.ReportFolder).
		Str("state_path", c.ResolvedStatePath()).
		Str("state_driver", c.StateDriver).
		Str("date_prefix", c.DatePrefix).
		Str("time_zone", c.TimeZone).
		Str("provider", c.Provider).
		Bool("incremental_save", c.IncrementalSave).
		Msg("Configuration loaded")
}
