// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/CielmobilityWorks/route-optimization-tools/internal/vrp"
)

type Solver struct {
	TimeLimit       time.Duration `yaml:"timeLimit" json:"timeLimit"`
	Objective       string        `yaml:"objective" json:"objective"`
	RouteMode       string        `yaml:"routeMode" json:"routeMode"`
	Seed            int64         `yaml:"seed" json:"seed"`
	StallIterations int           `yaml:"stallIterations" json:"stallIterations"`
	MaxIterations   int           `yaml:"maxIterations" json:"maxIterations"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst" json:"burst"`
	// TrustProxy keys clients by X-Forwarded-For; only set it behind a proxy
	// that overwrites the header.
	TrustProxy bool `yaml:"trustProxy" json:"trustProxy"`
}

type Webhooks struct {
	MaxAttempts  int           `yaml:"maxAttempts" json:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval" json:"pollInterval"`
}

type Config struct {
	Port        string    `yaml:"port" json:"port"`
	DatabaseURL string    `yaml:"databaseURL" json:"-"`
	SQLitePath  string    `yaml:"sqlitePath" json:"sqlitePath,omitempty"`
	Migrate     bool      `yaml:"migrate" json:"migrate"`
	RedisURL    string    `yaml:"redisURL" json:"-"`
	AdminToken  string    `yaml:"adminToken" json:"-"`
	Solver      Solver    `yaml:"solver" json:"solver"`
	RateLimit   RateLimit `yaml:"rateLimit" json:"rateLimit"`
	Webhooks    Webhooks  `yaml:"webhooks" json:"webhooks"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port: "8080",
		Solver: Solver{
			TimeLimit:       vrp.DefaultTimeLimit,
			Objective:       string(vrp.ObjectiveDistance),
			RouteMode:       vrp.TopologyFreeStartDepotEnd.String(),
			StallIterations: 2000,
		},
		RateLimit: RateLimit{RPS: 2, Burst: 4},
		Webhooks:  Webhooks{MaxAttempts: 10, PollInterval: time.Second},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SQLITE_PATH", &c.SQLitePath)
	str("REDIS_URL", &c.RedisURL)
	str("ADMIN_TOKEN", &c.AdminToken)
	str("SOLVER_OBJECTIVE", &c.Solver.Objective)
	str("SOLVER_ROUTE_MODE", &c.Solver.RouteMode)

	var errs []error
	parse := func(key string, fn func(string) error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := fn(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		}
	}
	parse("DB_MIGRATE", func(v string) (err error) { c.Migrate, err = strconv.ParseBool(v); return })
	parse("RATE_RPS", func(v string) (err error) { c.RateLimit.RPS, err = strconv.ParseFloat(v, 64); return })
	parse("RATE_BURST", func(v string) (err error) { c.RateLimit.Burst, err = strconv.Atoi(v); return })
	parse("RATE_TRUST_PROXY", func(v string) (err error) { c.RateLimit.TrustProxy, err = strconv.ParseBool(v); return })
	parse("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhooks.MaxAttempts, err = strconv.Atoi(v); return })
	parse("SOLVER_SEED", func(v string) (err error) { c.Solver.Seed, err = strconv.ParseInt(v, 10, 64); return })
	parse("SOLVER_STALL_ITERATIONS", func(v string) (err error) { c.Solver.StallIterations, err = strconv.Atoi(v); return })
	parse("SOLVER_TIME_LIMIT", func(v string) error {
		// bare numbers are seconds
		if n, err := strconv.Atoi(v); err == nil {
			c.Solver.TimeLimit = time.Duration(n) * time.Second
			return nil
		}
		d, err := time.ParseDuration(v)
		c.Solver.TimeLimit = d
		return err
	})
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Solver.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("solver time limit must be positive, got %s", c.Solver.TimeLimit))
	}
	if _, err := vrp.ParseObjective(c.Solver.Objective); err != nil {
		errs = append(errs, fmt.Errorf("solver objective: %w", err))
	}
	if c.Solver.RouteMode != "" {
		if _, err := vrp.ParseRouteMode(c.Solver.RouteMode); err != nil {
			errs = append(errs, fmt.Errorf("solver route mode: %w", err))
		}
	}
	if c.Solver.StallIterations < 0 || c.Solver.MaxIterations < 0 {
		errs = append(errs, errors.New("solver iteration limits must not be negative"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.Webhooks.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("webhook max attempts must be at least 1, got %d", c.Webhooks.MaxAttempts))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DefaultTopology is the topology used when a request names none.
func (c Config) DefaultTopology() vrp.Topology {
	t, err := vrp.ParseRouteMode(c.Solver.RouteMode)
	if err != nil {
		return vrp.TopologyFreeStartDepotEnd
	}
	return t
}
