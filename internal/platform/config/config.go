// Package config loads the server configuration: a YAML file layered over
// built-in defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/rewards"
)

// Config is the full server configuration.
type Config struct {
	Server      Server         `yaml:"server"`
	Storage     Storage        `yaml:"storage"`
	Leaderboard Leaderboard    `yaml:"leaderboard"`
	Economy     rules.Rules    `yaml:"economy"`
	Cards       []card.Card    `yaml:"cards"`
	Rewards     rewards.Config `yaml:"rewards"`
}

// Server holds the listener settings.
type Server struct {
	Addr    string `yaml:"addr"`
	Profile string `yaml:"profile"` // optimization preset: default, stress, low
	// SessionLinger keeps an idle session loaded after its last client leaves.
	SessionLinger time.Duration `yaml:"session_linger"`
}

// Storage holds local persistence settings.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	ArchiveDir string `yaml:"archive_dir"`
}

// Leaderboard holds remote mirror settings. An empty PostgresDSN keeps the
// leaderboard in the local SQLite file.
type Leaderboard struct {
	PostgresDSN  string        `yaml:"postgres_dsn"`
	SyncInterval time.Duration `yaml:"sync_interval"`
	PushTimeout  time.Duration `yaml:"push_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheSize    int           `yaml:"cache_size"`
	TopN         int           `yaml:"top_n"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			Profile:       "default",
			SessionLinger: 30 * time.Second,
		},
		Storage: Storage{
			SQLitePath: "data/basecaster.db",
			ArchiveDir: "data/archives",
		},
		Leaderboard: Leaderboard{
			SyncInterval: 10 * time.Second,
			PushTimeout:  5 * time.Second,
			CacheTTL:     5 * time.Second,
			CacheSize:    32,
			TopN:         100,
		},
		Economy: rules.Default(),
		Cards:   append([]card.Card(nil), card.DefaultCards...),
		Rewards: rewards.DefaultConfig(),
	}
}

// Load reads path (if non-empty) over Default and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from BASECASTER_* variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("BASECASTER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BASECASTER_PROFILE"); v != "" {
		cfg.Server.Profile = v
	}
	if v := os.Getenv("BASECASTER_DB"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("BASECASTER_PG_DSN"); v != "" {
		cfg.Leaderboard.PostgresDSN = v
	}
	if d := getEnvDuration("BASECASTER_SYNC_INTERVAL"); d > 0 {
		cfg.Leaderboard.SyncInterval = d
	}
}

// Validate rejects configurations the economy cannot run with.
func (c Config) Validate() error {
	var errs []error
	e := c.Economy
	if e.BaseEnergy <= 0 {
		errs = append(errs, errors.New("economy.base_energy must be positive"))
	}
	if e.RegenRate < 0 || e.EnergyCapStep < 0 || e.TapMultiplier < 0 {
		errs = append(errs, errors.New("economy: negative rate, step or multiplier"))
	}
	if e.RegenInterval <= 0 {
		errs = append(errs, errors.New("economy.regen_interval must be positive"))
	}
	if e.UpgradeGrowth < 1 || e.CardGrowth < 1 {
		errs = append(errs, errors.New("economy: growth factors must be >= 1"))
	}
	if c.Server.SessionLinger < 0 {
		errs = append(errs, errors.New("server.session_linger must be non-negative"))
	}
	if c.Leaderboard.SyncInterval <= 0 {
		errs = append(errs, errors.New("leaderboard.sync_interval must be positive"))
	}
	if _, err := card.NewCatalog(c.Cards); err != nil {
		errs = append(errs, fmt.Errorf("cards: %w", err))
	}
	if err := c.Rewards.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rewards: %w", err))
	}
	return errors.Join(errs...)
}

// Catalog builds the card catalog. Call after Validate.
func (c Config) Catalog() (*card.Catalog, error) {
	return card.NewCatalog(c.Cards)
}

func getEnvDuration(key string) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}
