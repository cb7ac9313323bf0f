// ABOUTME: Runtime configuration for the sync engine and CLI
// ABOUTME: Layers defaults, a JSON file at XDG paths, a .env file, and environment overrides
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// AppName names the XDG subdirectories used for config and data.
const AppName = "platam"

// DefaultBaseURL is the provider API root.
const DefaultBaseURL = "https://api.apollo.io"

// Duration is a time.Duration that reads and writes as a Go duration string ("2s").
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	d.Duration = time.Duration(ms) * time.Millisecond
	return nil
}

// Config holds every tunable of a run. It is built once by Load and passed explicitly.
type Config struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url"`
	Env     string `json:"env"`

	LedgerPath   string `json:"ledger_path"`
	DBPath       string `json:"db_path"`
	SnapshotPath string `json:"snapshot_path"`

	BatchLimit      int  `json:"batch_limit"`
	Workers         int  `json:"workers"`
	Enrich          bool `json:"enrich"`
	CheckpointEvery int  `json:"checkpoint_every"`

	PageSize       int      `json:"page_size"`
	MaxPages       int      `json:"max_pages"`
	RequestTimeout Duration `json:"request_timeout"`
	Pacing         Duration `json:"pacing"`
	MaxAttempts    int      `json:"max_attempts"`
	RetryDelay     Duration `json:"retry_delay"`
	RetryJitter    bool     `json:"retry_jitter"`

	SampleSize     int      `json:"sample_size"`
	RecentActivity int      `json:"recent_activity"`
	LockTTL        Duration `json:"lock_ttl"`
}

// DataDir returns the XDG data directory for the application.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultPath returns the XDG config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.json")
}

// Default returns a config populated with defaults only.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		BaseURL:         DefaultBaseURL,
		Env:             "production",
		LedgerPath:      filepath.Join(dataDir, "contacts.csv"),
		DBPath:          filepath.Join(dataDir, "platam.db"),
		SnapshotPath:    filepath.Join(dataDir, "snapshot.json"),
		BatchLimit:      20,
		Workers:         1,
		CheckpointEvery: 20,
		PageSize:        100,
		MaxPages:        50,
		RequestTimeout:  Duration{30 * time.Second},
		Pacing:          Duration{500 * time.Millisecond},
		MaxAttempts:     3,
		RetryDelay:      Duration{2 * time.Second},
		SampleSize:      100,
		RecentActivity:  30,
		LockTTL:         Duration{30 * time.Minute},
	}
}

// Load builds the effective configuration. An empty path means DefaultPath, which
// may be absent; an explicit path must exist. A .env file in the working directory
// is read when present.
func Load(path string) (*Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv location. An empty envFile skips it.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides:
// - APOLLO_API_KEY
// - APOLLO_BASE_URL
// - PLATAM_LEDGER
// - PLATAM_DB
// - PLATAM_SNAPSHOT
// - PLATAM_BATCH_LIMIT
// - PLATAM_WORKERS
// - PLATAM_ENV
// - PLATAM_ENRICH.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APOLLO_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("APOLLO_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PLATAM_LEDGER"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("PLATAM_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PLATAM_SNAPSHOT"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("PLATAM_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PLATAM_BATCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PLATAM_BATCH_LIMIT %q: %w", v, err)
		}
		cfg.BatchLimit = n
	}
	if v := os.Getenv("PLATAM_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PLATAM_WORKERS %q: %w", v, err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("PLATAM_ENRICH"); v != "" {
		cfg.Enrich = v == "true" || v == "1"
	}
	return nil
}

// Validate checks ranges. A missing API key is not an error here since offline
// commands never call the provider; see RequireAPIKey.
func (c *Config) Validate() error {
	var problems []string
	if c.LedgerPath == "" {
		problems = append(problems, "ledger_path is required")
	}
	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.BaseURL == "" {
		problems = append(problems, "base_url is required")
	}
	if c.BatchLimit < 0 {
		problems = append(problems, "batch_limit must be >= 0")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be >= 1")
	}
	if c.CheckpointEvery < 1 {
		problems = append(problems, "checkpoint_every must be >= 1")
	}
	if c.PageSize < 1 {
		problems = append(problems, "page_size must be >= 1")
	}
	if c.MaxPages < 1 {
		problems = append(problems, "max_pages must be >= 1")
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be >= 1")
	}
	if c.RequestTimeout.Duration <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.Pacing.Duration < 0 || c.RetryDelay.Duration < 0 {
		problems = append(problems, "pacing and retry_delay must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireAPIKey returns an error when provider credentials are missing.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("APOLLO_API_KEY not set (export it or add it to .env)")
	}
	return nil
}

// MaskedAPIKey shows only the last four characters of the key.
func (c *Config) MaskedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return strings.Repeat("*", len(c.APIKey))
	}
	return strings.Repeat("*", len(c.APIKey)-4) + c.APIKey[len(c.APIKey)-4:]
}

// Save writes the config as indented JSON, omitting the API key.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *cfg
	out.APIKey = ""

	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
