package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Solver holds the defaults applied to solve requests that leave a setting
// out. Every field can come from the environment or from the YAML file named
// by CONFIG_FILE.
type Solver struct {
	Default     string `env:"SOLVER_DEFAULT" envDefault:"tsp-3opt" yaml:"default"`
	WorkerCount int    `env:"SOLVER_WORKER_COUNT" envDefault:"4" yaml:"worker_count"`
	Seed        int64  `env:"SOLVER_SEED" envDefault:"0" yaml:"seed"`
	Improve     bool   `env:"SOLVER_IMPROVE" envDefault:"true" yaml:"improve"`
	MaxStops    int    `env:"SOLVER_MAX_STOPS" envDefault:"2000" yaml:"max_stops"`

	Genetic struct {
		PopulationSize      int     `env:"GA_POPULATION_SIZE" envDefault:"100" yaml:"population_size"`
		StagnationLimit     int     `env:"GA_STAGNATION_LIMIT" envDefault:"50" yaml:"stagnation_limit"`
		ElitismPercentage   int     `env:"GA_ELITISM_PCT" envDefault:"10" yaml:"elitism_pct"`
		CrossoverPercentage int     `env:"GA_CROSSOVER_PCT" envDefault:"60" yaml:"crossover_pct"`
		MutationPercentage  int     `env:"GA_MUTATION_PCT" envDefault:"30" yaml:"mutation_pct"`
		MaxGenerations      int     `env:"GA_MAX_GENERATIONS" envDefault:"1000" yaml:"max_generations"`
		MutationThreshold   float64 `env:"GA_MUTATION_THRESHOLD" envDefault:"0.5" yaml:"mutation_threshold"`
	} `yaml:"genetic"`

	ThreeOpt struct {
		NearestNeighbours bool `env:"THREE_OPT_NEAREST_NEIGHBOURS" envDefault:"true" yaml:"restrict_to_nearest_neighbours"`
		DontLookBits      bool `env:"THREE_OPT_DONT_LOOK_BITS" envDefault:"true" yaml:"use_dont_look_bits"`
	} `yaml:"three_opt"`

	Randomized struct {
		Divisor   int `env:"RAI_DIVISOR" envDefault:"2" yaml:"divisor"`
		MaxTrials int `env:"RAI_MAX_TRIALS" envDefault:"0" yaml:"max_trials"`
	} `yaml:"randomized"`
}

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	ConfigFile  string `env:"CONFIG_FILE"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"25s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	RateLimit struct {
		RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
		Burst             int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	}
	Jobs struct {
		Retention time.Duration `env:"JOB_RETENTION" envDefault:"1h"`
		MaxJobs   int           `env:"JOB_MAX" envDefault:"1000"`
	}
	Solver Solver `yaml:"solver"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Overlay solver settings from the optional YAML file
	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the YAML document at path into the solver settings. Keys
// missing from the file keep their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var doc struct {
		Solver *Solver `yaml:"solver"`
	}
	doc.Solver = &c.Solver
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that cannot be corrected by a default.
func (c *Config) Validate() error {
	if c.Solver.WorkerCount < 1 {
		return fmt.Errorf("solver worker count must be positive, got %d", c.Solver.WorkerCount)
	}
	g := c.Solver.Genetic
	if g.ElitismPercentage < 0 || g.CrossoverPercentage < 0 || g.MutationPercentage < 0 {
		return fmt.Errorf("genetic percentages must not be negative")
	}
	if sum := g.ElitismPercentage + g.CrossoverPercentage + g.MutationPercentage; sum > 100 {
		return fmt.Errorf("genetic percentages sum to %d, more than 100", sum)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
