package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Blob       BlobConfig       `mapstructure:"blob"`
	Aligner    AlignerConfig    `mapstructure:"aligner"`
	Screening  ScreeningConfig  `mapstructure:"screening"`
	Difficulty DifficultyConfig `mapstructure:"difficulty"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URI string `mapstructure:"uri"`
}

type BlobConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Root            string `mapstructure:"root"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AlignerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type ScreeningConfig struct {
	QueueLimit  int     `mapstructure:"queue_limit"`
	MinAccuracy float64 `mapstructure:"min_accuracy"`
	CheckUnk    bool    `mapstructure:"check_unk"`
	UnkToken    string  `mapstructure:"unk_token"`
	FindLimit   int     `mapstructure:"find_limit"`
	Version     string  `mapstructure:"version"`
}

// DifficultyConfig selects between rank-distribution and fixed-threshold
// bucket assignment. Exactly one of Distribution or Thresholds is used
// depending on Mode.
type DifficultyConfig struct {
	Mode         string    `mapstructure:"mode"`
	Distribution []float64 `mapstructure:"distribution"`
	Thresholds   []float64 `mapstructure:"thresholds"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(filename string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(filename)

	// Set defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("screening.queue_limit", 32)
	v.SetDefault("screening.min_accuracy", 0.5)
	v.SetDefault("screening.check_unk", true)
	v.SetDefault("screening.unk_token", "<unk>")
	v.SetDefault("screening.find_limit", 32)
	v.SetDefault("screening.version", "0.2.0")
	v.SetDefault("aligner.timeout_seconds", 120)
	v.SetDefault("difficulty.mode", "distribution")
	v.SetDefault("difficulty.distribution", []float64{0.6, 0.3, 0.1})
	v.SetDefault("blob.root", "development")
	v.SetDefault("log.mode", "dev")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Environment variable configuration
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Validate required fields
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	if cfg.Redis.URI == "" {
		return nil, fmt.Errorf("redis URI is required")
	}
	if cfg.Blob.Bucket == "" {
		return nil, fmt.Errorf("blob bucket is required")
	}
	if cfg.Aligner.BaseURL == "" {
		return nil, fmt.Errorf("aligner base URL is required")
	}
	if cfg.Screening.QueueLimit <= 0 {
		return nil, fmt.Errorf("screening queue limit must be positive")
	}
	if cfg.Screening.MinAccuracy < 0 || cfg.Screening.MinAccuracy > 1 {
		return nil, fmt.Errorf("screening min accuracy must be within [0, 1]")
	}
	if cfg.Screening.UnkToken == "" {
		return nil, fmt.Errorf("screening unk token is required")
	}

	return &cfg, nil
}
