package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/partygames/go/internal/dbconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	GameDataDir string `yaml:"game_data_dir"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	Game struct {
		MaxPlayers   int           `yaml:"max_players_per_game"`
		RoundTimeout time.Duration `yaml:"round_timeout"`
		ScoringDelay time.Duration `yaml:"scoring_delay"`
		HandSize     int           `yaml:"hand_size"`
		MaxRounds    int           `yaml:"max_rounds"`
		MinPlayers   int           `yaml:"min_players"`
	} `yaml:"game"`

	Snapshots struct {
		Interval        time.Duration `yaml:"interval"`
		FileEnabled     bool          `yaml:"file_enabled"`
		PostgresEnabled bool          `yaml:"postgres_enabled"`
		NATSEnabled     bool          `yaml:"nats_enabled"`
		NATSURL         string        `yaml:"nats_url"`
	} `yaml:"snapshots"`

	// Database is read from DATABASE_URL / DB_* only.
	Database dbconfig.Config `yaml:"-"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Port = "3000"
	cfg.GameDataDir = "./data"
	cfg.LogLevel = "info"
	cfg.LogFormat = "console"

	cfg.Game.MaxPlayers = 12
	cfg.Game.RoundTimeout = 10 * time.Second
	cfg.Game.ScoringDelay = 3 * time.Second
	cfg.Game.HandSize = 7
	cfg.Game.MaxRounds = 10
	cfg.Game.MinPlayers = 3

	cfg.Snapshots.Interval = 5 * time.Second
	cfg.Snapshots.FileEnabled = true
	cfg.Snapshots.NATSURL = "nats://localhost:4222"
	return cfg
}

// loadConfig applies, in order: defaults, the YAML file at path (if it
// exists), then environment variables.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GameDataDir = getEnv("GAME_DATA_DIR", cfg.GameDataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.Game.MaxPlayers = getEnvAsInt("MAX_PLAYERS_PER_GAME", cfg.Game.MaxPlayers)
	cfg.Game.RoundTimeout = getEnvAsDuration("ROUND_TIMEOUT", cfg.Game.RoundTimeout)
	cfg.Game.ScoringDelay = getEnvAsDuration("SCORING_DELAY", cfg.Game.ScoringDelay)
	cfg.Game.HandSize = getEnvAsInt("HAND_SIZE", cfg.Game.HandSize)
	cfg.Game.MaxRounds = getEnvAsInt("MAX_ROUNDS", cfg.Game.MaxRounds)
	cfg.Game.MinPlayers = getEnvAsInt("MIN_PLAYERS", cfg.Game.MinPlayers)

	cfg.Snapshots.Interval = getEnvAsDuration("GAME_SAVE_INTERVAL", cfg.Snapshots.Interval)
	cfg.Snapshots.FileEnabled = getEnvAsBool("SNAPSHOT_FILE_ENABLED", cfg.Snapshots.FileEnabled)
	cfg.Snapshots.PostgresEnabled = getEnvAsBool("SNAPSHOT_POSTGRES_ENABLED", cfg.Snapshots.PostgresEnabled)
	cfg.Snapshots.NATSEnabled = getEnvAsBool("SNAPSHOT_NATS_ENABLED", cfg.Snapshots.NATSEnabled)
	cfg.Snapshots.NATSURL = getEnv("NATS_URL", cfg.Snapshots.NATSURL)

	cfg.Database = dbconfig.NewConfigFromEnv()

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var problems []string
	if c.Game.MaxPlayers < 1 {
		problems = append(problems, "max_players_per_game must be positive")
	}
	if c.Game.MinPlayers < 2 {
		problems = append(problems, "min_players must be at least 2")
	}
	if c.Game.HandSize < 1 {
		problems = append(problems, "hand_size must be positive")
	}
	if c.Game.MaxRounds < 1 {
		problems = append(problems, "max_rounds must be positive")
	}
	if c.Game.RoundTimeout <= 0 || c.Game.ScoringDelay <= 0 || c.Snapshots.Interval <= 0 {
		problems = append(problems, "durations must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("10s") or bare milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
