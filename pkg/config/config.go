package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
	"github.com/stitts-dev/cfl-optimizer/internal/providers"
)

// DefaultLeagueTeams are the nine CFL franchises.
var DefaultLeagueTeams = []string{"OTT", "TOR", "HAM", "MTL", "SSK", "WPG", "CGY", "EDM", "BC"}

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Database
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Redis (empty disables redis and falls back to the in-memory cache)
	RedisURL string        `mapstructure:"REDIS_URL"`
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Roster rules
	SalaryCap  int `mapstructure:"SALARY_CAP"`
	RosterSize int `mapstructure:"ROSTER_SIZE"`
	MaxPerTeam int `mapstructure:"MAX_PER_TEAM"`

	// Optimization
	SolverBackend  string        `mapstructure:"SOLVER_BACKEND"`
	SolveTimeout   time.Duration `mapstructure:"SOLVE_TIMEOUT"`
	SolveNodeLimit int           `mapstructure:"SOLVE_NODE_LIMIT"`
	CaptainWorkers int           `mapstructure:"CAPTAIN_WORKERS"`
	MaxLineups     int           `mapstructure:"MAX_LINEUPS"`

	// Fantasy feed
	FeedBaseURL             string        `mapstructure:"FEED_BASE_URL"`
	FeedRateLimit           float64       `mapstructure:"FEED_RATE_LIMIT"`
	FeedTimeout             time.Duration `mapstructure:"FEED_TIMEOUT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`
	FeedMaxResponseBytes    int64         `mapstructure:"FEED_MAX_RESPONSE_BYTES"`
	FeedCurrentTeamPath     string        `mapstructure:"FEED_CURRENT_TEAM_PATH"`
	// Cron spec for the background snapshot refresh; empty disables it.
	FeedRefreshSchedule string   `mapstructure:"FEED_REFRESH_SCHEDULE"`
	LeagueTeams         []string `mapstructure:"LEAGUE_TEAMS"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	// Set defaults
	v.SetDefault("PORT", "8083")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DATABASE_URL", "cfl_optimizer.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CACHE_TTL", "10m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("SALARY_CAP", optimizer.DefaultSalaryCap)
	v.SetDefault("ROSTER_SIZE", optimizer.DefaultRosterSize)
	v.SetDefault("MAX_PER_TEAM", optimizer.DefaultMaxPerTeam)
	v.SetDefault("SOLVER_BACKEND", optimizer.BackendBranchAndBound)
	v.SetDefault("SOLVE_TIMEOUT", "5s")
	v.SetDefault("SOLVE_NODE_LIMIT", 200000)
	v.SetDefault("CAPTAIN_WORKERS", 1)
	v.SetDefault("MAX_LINEUPS", optimizer.DefaultMaxLineups)
	v.SetDefault("FEED_BASE_URL", "https://gamezone.cfl.ca/json/fantasy")
	v.SetDefault("FEED_RATE_LIMIT", 5)            // requests per second
	v.SetDefault("FEED_TIMEOUT", "10s")           // per request
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)  // consecutive failures before opening
	v.SetDefault("FEED_MAX_RESPONSE_BYTES", 10<<20)
	v.SetDefault("FEED_CURRENT_TEAM_PATH", "")
	v.SetDefault("FEED_REFRESH_SCHEDULE", "")
	v.SetDefault("LEAGUE_TEAMS", strings.Join(DefaultLeagueTeams, ","))

	// Read from environment
	v.AutomaticEnv()

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse comma-separated lists
	config.CorsOrigins = splitList(v.GetString("CORS_ORIGINS"))
	config.LeagueTeams = splitList(v.GetString("LEAGUE_TEAMS"))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.SalaryCap <= 0 {
		return fmt.Errorf("SALARY_CAP must be positive, got %d", c.SalaryCap)
	}
	if c.MaxPerTeam <= 0 {
		return fmt.Errorf("MAX_PER_TEAM must be positive, got %d", c.MaxPerTeam)
	}
	if err := c.RosterRequirement().Validate(); err != nil {
		return fmt.Errorf("invalid roster configuration: %w", err)
	}
	if c.FeedRefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.FeedRefreshSchedule); err != nil {
			return fmt.Errorf("invalid FEED_REFRESH_SCHEDULE %q: %w", c.FeedRefreshSchedule, err)
		}
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RosterRequirement returns the CFL roster with the configured team cap.
// ROSTER_SIZE must stay consistent with the slot layout; Validate checks it.
func (c *Config) RosterRequirement() optimizer.RosterRequirement {
	req := optimizer.DefaultRequirement().WithMaxPerTeam(c.MaxPerTeam)
	req.RosterSize = c.RosterSize
	return req
}

// SolveOptions projects the solver settings.
func (c *Config) SolveOptions() optimizer.SolveOptions {
	return optimizer.SolveOptions{
		Backend:   c.SolverBackend,
		Timeout:   c.SolveTimeout,
		NodeLimit: c.SolveNodeLimit,
	}
}

// FeedClientConfig projects the feed settings.
func (c *Config) FeedClientConfig() providers.FeedClientConfig {
	return providers.FeedClientConfig{
		BaseURL:          c.FeedBaseURL,
		RateLimit:        c.FeedRateLimit,
		Timeout:          c.FeedTimeout,
		FailureThreshold: c.CircuitBreakerThreshold,
		MaxResponseBytes: c.FeedMaxResponseBytes,
		CurrentTeamPath:  c.FeedCurrentTeamPath,
	}
}

// EngineConfig assembles everything the optimizer engine needs.
func (c *Config) EngineConfig() optimizer.EngineConfig {
	return optimizer.EngineConfig{
		Solve:          c.SolveOptions(),
		SalaryCap:      c.SalaryCap,
		Requirement:    c.RosterRequirement(),
		CaptainWorkers: c.CaptainWorkers,
		MaxLineups:     c.MaxLineups,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
