// Package daemon manages the YVP server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yanzu-lab/yvp/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	API       APIConfig       `toml:"api"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Roster    RosterConfig    `toml:"roster"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Health    HealthConfig    `toml:"health"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// LedgerConfig selects the workflow and ledger rules. Policy names a
// preset; any field set below overrides that preset.
type LedgerConfig struct {
	Policy   string `toml:"policy"`
	Timezone string `toml:"timezone"`

	FineRate                  *float64 `toml:"fine_rate,omitempty"`
	FineWindowDays            *int     `toml:"fine_window_days,omitempty"`
	MaxActiveClaims           *int     `toml:"max_active_claims,omitempty"`
	CapCountsRework           *bool    `toml:"cap_counts_rework,omitempty"`
	CumulativeFines           *bool    `toml:"cumulative_fines,omitempty"`
	FineWindowedBalances      *bool    `toml:"fine_windowed_balances,omitempty"`
	RestrictPenaltiesToWindow *bool    `toml:"restrict_penalties_to_window,omitempty"`
	RequireAcceptFeedback     *bool    `toml:"require_accept_feedback,omitempty"`
}

// RosterConfig lists the administrators created on startup.
type RosterConfig struct {
	Admins []string `toml:"admins"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`

	// Quiet drops console output; the log file still receives everything.
	Quiet bool `toml:"-"`
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// HealthConfig controls the background checks.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := yvpHome()
	return Config{
		Store: StoreConfig{Dir: homeDir},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Ledger: LedgerConfig{
			Policy: domain.PolicyCurrent,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "yvp.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{Prometheus: true},
		Health:    HealthConfig{Interval: "60s"},
	}
}

// LoadConfig reads config from ~/.yvp/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if _, err := cfg.Ledger.ResolvePolicy(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Ledger.Location(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.yvp/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ResolvePolicy applies the overrides to the named preset.
func (c LedgerConfig) ResolvePolicy() (domain.Policy, error) {
	p, err := domain.PolicyByName(c.Policy)
	if err != nil {
		return p, err
	}
	if c.FineRate != nil {
		if *c.FineRate < 0 || *c.FineRate > 1 {
			return p, fmt.Errorf("ledger.fine_rate must be within [0, 1], got %v", *c.FineRate)
		}
		p.FineRate = *c.FineRate
	}
	if c.FineWindowDays != nil {
		if *c.FineWindowDays < 0 {
			return p, fmt.Errorf("ledger.fine_window_days must be >= 0, got %d", *c.FineWindowDays)
		}
		p.FineWindow = time.Duration(*c.FineWindowDays) * 24 * time.Hour
	}
	if c.MaxActiveClaims != nil {
		p.MaxActiveClaims = max(0, *c.MaxActiveClaims)
	}
	if c.CapCountsRework != nil {
		p.CapCountsRework = *c.CapCountsRework
	}
	if c.CumulativeFines != nil {
		p.CumulativeFines = *c.CumulativeFines
	}
	if c.FineWindowedBalances != nil {
		p.FineWindowedBalances = *c.FineWindowedBalances
	}
	if c.RestrictPenaltiesToWindow != nil {
		p.RestrictPenaltiesToWindow = *c.RestrictPenaltiesToWindow
	}
	if c.RequireAcceptFeedback != nil {
		p.RequireAcceptFeedback = *c.RequireAcceptFeedback
	}
	return p, nil
}

// Location returns the zone day boundaries are computed in.
func (c LedgerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger.timezone: %w", err)
	}
	return loc, nil
}

// yvpHome returns the YVP data directory.
func yvpHome() string {
	if env := os.Getenv("YVP_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".yvp")
}

// Home is exported for use by other packages.
func Home() string {
	return yvpHome()
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(yvpHome(), "config.toml")
}
