// Package daemon loads and validates the process configuration.
// Files are TOML (default, ~/.econ/config.toml) or YAML; ECON_* environment
// variables override either.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tutu-network/econ/internal/domain"
)

// Config is the on-disk configuration.
type Config struct {
	API         APIConfig         `toml:"api" yaml:"api" envPrefix:"API_"`
	Storage     StorageConfig     `toml:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Log         LogConfig         `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Economy     EconomyConfig     `toml:"economy" yaml:"economy" envPrefix:"ECONOMY_"`
	Rob         RobConfig         `toml:"rob" yaml:"rob" envPrefix:"ROB_"`
	Clan        ClanConfig        `toml:"clan" yaml:"clan" envPrefix:"CLAN_"`
	Leaderboard LeaderboardConfig `toml:"leaderboard" yaml:"leaderboard" envPrefix:"LEADERBOARD_"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Host    string `toml:"host" yaml:"host" env:"HOST"`
	Port    int    `toml:"port" yaml:"port" env:"PORT"`
	Metrics bool   `toml:"metrics" yaml:"metrics" env:"METRICS"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver  string `toml:"driver" yaml:"driver" env:"DRIVER"`    // sqlite | postgres | json | memory
	Path    string `toml:"path" yaml:"path" env:"PATH"`          // sqlite dir or json file
	URL     string `toml:"url" yaml:"url" env:"URL"`             // postgres DSN
	Timeout string `toml:"timeout" yaml:"timeout" env:"TIMEOUT"` // per storage call
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level    string `toml:"level" yaml:"level" env:"LEVEL"`
	Encoding string `toml:"encoding" yaml:"encoding" env:"ENCODING"`
}

// EconomyConfig holds balances, cooldowns, the job table and daily payouts.
type EconomyConfig struct {
	StartingWallet int64        `toml:"starting_wallet" yaml:"starting_wallet" env:"STARTING_WALLET"`
	StartingBank   int64        `toml:"starting_bank" yaml:"starting_bank" env:"STARTING_BANK"`
	WorkCooldown   string       `toml:"work_cooldown" yaml:"work_cooldown" env:"WORK_COOLDOWN"`
	Timezone       string       `toml:"timezone" yaml:"timezone" env:"TIMEZONE"`
	DailyMin       int64        `toml:"daily_min" yaml:"daily_min" env:"DAILY_MIN"`
	DailyMax       int64        `toml:"daily_max" yaml:"daily_max" env:"DAILY_MAX"`
	CurrencySymbol string       `toml:"currency_symbol" yaml:"currency_symbol" env:"CURRENCY_SYMBOL"`
	Jobs           []domain.Job `toml:"jobs" yaml:"jobs"`
}

// RobConfig tunes the rob action.
type RobConfig struct {
	Cooldown         string  `toml:"cooldown" yaml:"cooldown" env:"COOLDOWN"`
	SuccessRate      float64 `toml:"success_rate" yaml:"success_rate" env:"SUCCESS_RATE"`
	MinTargetBalance int64   `toml:"min_target_balance" yaml:"min_target_balance" env:"MIN_TARGET_BALANCE"`
	MinRobberBalance int64   `toml:"min_robber_balance" yaml:"min_robber_balance" env:"MIN_ROBBER_BALANCE"`
	MinSteal         int64   `toml:"min_steal" yaml:"min_steal" env:"MIN_STEAL"`
	MaxStealPercent  float64 `toml:"max_steal_percent" yaml:"max_steal_percent" env:"MAX_STEAL_PERCENT"`
	FailPenalty      int64   `toml:"fail_penalty" yaml:"fail_penalty" env:"FAIL_PENALTY"`
}

// ClanConfig tunes the clan aggregate.
type ClanConfig struct {
	CreateCost  int64 `toml:"create_cost" yaml:"create_cost" env:"CREATE_COST"`
	UpgradeCost int64 `toml:"upgrade_cost" yaml:"upgrade_cost" env:"UPGRADE_COST"`
	MaxMembers  int   `toml:"max_members" yaml:"max_members" env:"MAX_MEMBERS"`
}

// LeaderboardConfig bounds the ranking query.
type LeaderboardConfig struct {
	TopN    int `toml:"top_n" yaml:"top_n" env:"TOP_N"`
	MaxTopN int `toml:"max_top_n" yaml:"max_top_n" env:"MAX_TOP_N"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	rules := domain.DefaultRules()
	board := domain.DefaultLeaderboardConfig()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8787,
			Metrics: true,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			Path:    filepath.Join(Home(), "data"),
			Timeout: "5s",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Economy: EconomyConfig{
			StartingWallet: rules.StartingWallet,
			StartingBank:   rules.StartingBank,
			WorkCooldown:   "60m",
			Timezone:       "Asia/Jakarta",
			DailyMin:       rules.DailyMin,
			DailyMax:       rules.DailyMax,
			CurrencySymbol: rules.CurrencySymbol,
			Jobs:           rules.Jobs,
		},
		Rob: RobConfig{
			Cooldown:         "30m",
			SuccessRate:      rules.RobSuccessRate,
			MinTargetBalance: rules.RobMinTargetBalance,
			MinRobberBalance: rules.RobMinRobberBalance,
			MinSteal:         rules.RobMinSteal,
			MaxStealPercent:  rules.RobMaxStealPercent,
			FailPenalty:      rules.RobFailPenalty,
		},
		Clan: ClanConfig{
			CreateCost:  rules.ClanCreateCost,
			UpgradeCost: rules.ClanUpgradeCost,
			MaxMembers:  rules.ClanMaxMembers,
		},
		Leaderboard: LeaderboardConfig{
			TopN:    board.TopN,
			MaxTopN: board.MaxTopN,
		},
	}
}

// Home returns the econ home directory ($ECON_HOME or ~/.econ).
func Home() string {
	if h := os.Getenv("ECON_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".econ"
	}
	return filepath.Join(home, ".econ")
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults, applies ECON_* overrides and
// validates the result. A missing default file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, raw, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ECON_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	default:
		if _, err := toml.Decode(string(raw), cfg); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// Validate checks every section and the derived economy rules.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	switch c.Storage.Driver {
	case "sqlite", "json":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path required for %s", c.Storage.Driver))
		}
	case "postgres":
		if c.Storage.URL == "" {
			errs = append(errs, errors.New("storage.url required for postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if _, err := c.StorageTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Leaderboard.TopN < 1 || c.Leaderboard.MaxTopN < c.Leaderboard.TopN {
		errs = append(errs, errors.New("leaderboard: need 1 <= top_n <= max_top_n"))
	}
	if _, err := c.Rules(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StorageTimeout parses storage.timeout.
func (c Config) StorageTimeout() (time.Duration, error) {
	d, err := parseDuration("storage.timeout", c.Storage.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("storage.timeout must be positive")
	}
	return d, nil
}

// Rules converts the economy sections to validated domain rules.
func (c Config) Rules() (domain.Rules, error) {
	work, err := parseDuration("economy.work_cooldown", c.Economy.WorkCooldown)
	if err != nil {
		return domain.Rules{}, err
	}
	rob, err := parseDuration("rob.cooldown", c.Rob.Cooldown)
	if err != nil {
		return domain.Rules{}, err
	}
	loc, err := time.LoadLocation(c.Economy.Timezone)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("economy.timezone: %w", err)
	}
	r := domain.Rules{
		StartingWallet:      c.Economy.StartingWallet,
		StartingBank:        c.Economy.StartingBank,
		WorkCooldown:        work,
		RobCooldown:         rob,
		Location:            loc,
		Jobs:                append([]domain.Job(nil), c.Economy.Jobs...),
		DailyMin:            c.Economy.DailyMin,
		DailyMax:            c.Economy.DailyMax,
		RobSuccessRate:      c.Rob.SuccessRate,
		RobMinTargetBalance: c.Rob.MinTargetBalance,
		RobMinRobberBalance: c.Rob.MinRobberBalance,
		RobMinSteal:         c.Rob.MinSteal,
		RobMaxStealPercent:  c.Rob.MaxStealPercent,
		RobFailPenalty:      c.Rob.FailPenalty,
		ClanCreateCost:      c.Clan.CreateCost,
		ClanUpgradeCost:     c.Clan.UpgradeCost,
		ClanMaxMembers:      c.Clan.MaxMembers,
		CurrencySymbol:      c.Economy.CurrencySymbol,
	}
	if err := r.Validate(); err != nil {
		return domain.Rules{}, fmt.Errorf("economy rules: %w", err)
	}
	return r, nil
}

// LeaderboardLimits returns the ranking bounds as a domain value.
func (c Config) LeaderboardLimits() domain.LeaderboardConfig {
	return domain.LeaderboardConfig{TopN: c.Leaderboard.TopN, MaxTopN: c.Leaderboard.MaxTopN}
}

// Addr returns host:port for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
