// Package config loads runtime configuration from an optional TOML
// file, environment variables, and CLI flags, in that increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every runtime-tunable setting.
type Config struct {
	ListenAddr string        `mapstructure:"listen_addr"`
	Logging    LoggingConfig `mapstructure:"logging"`
	Database   DatabaseConfig `mapstructure:"database"`

	MaxSessionsPerRoom     int `mapstructure:"max_sessions_per_room"`
	MaxBoardDiffGroupSize  int `mapstructure:"max_board_diff_group_size"`
	MaxBoardDiffGroupQueue int `mapstructure:"max_board_diff_group_queue"`
	DirtyScanConcurrency   int `mapstructure:"dirty_scan_concurrency"`

	CPURejectThresholdPercent float64 `mapstructure:"cpu_reject_threshold_percent"`
	MaxConnections            int     `mapstructure:"max_connections"`
	SessionRatePerSec         float64 `mapstructure:"session_rate_per_sec"`
	SessionRateBurst          int     `mapstructure:"session_rate_burst"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

// DatabaseConfig points at the SQLite file backing room persistence.
type DatabaseConfig struct {
	URI string `mapstructure:"uri"`
}

// Args are the CLI flags, parsed separately from Load so callers can
// inspect them (e.g. to pick the config path) before the full config
// is resolved.
type Args struct {
	ConfigPath string
	ListenAddr string
	LogLevel   string
}

// ParseArgs parses os.Args-style arguments into Args. Empty fields
// mean "not provided" and are left for the config file/env/default
// chain to fill in.
func ParseArgs(args []string) (Args, error) {
	fs := pflag.NewFlagSet("sudoku", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "sudoku.toml", "path to the TOML config file")
	listenAddr := fs.StringP("listen-addr", "a", "", "override listen_addr")
	logLevel := fs.StringP("log-level", "l", "", "override logging.level")
	if err := fs.Parse(args); err != nil {
		return Args{}, err
	}
	return Args{ConfigPath: *configPath, ListenAddr: *listenAddr, LogLevel: *logLevel}, nil
}

// Load resolves the final Config from defaults, an optional TOML
// file, a local .env file, environment variables, and CLI overrides,
// in that order. A missing config file is not an error, matching the
// teacher's tolerant godotenv.Load behavior generalized to TOML.
func Load(a Args, prelog zerolog.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		prelog.Info().Msg("no .env file found, using environment variables only")
	}

	v := viper.New()
	v.SetDefault("listen_addr", "127.0.0.1:9091")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.color", false)
	v.SetDefault("database.uri", "sudoku.db")
	v.SetDefault("max_sessions_per_room", 8)
	v.SetDefault("max_board_diff_group_size", 8)
	v.SetDefault("max_board_diff_group_queue", 32)
	v.SetDefault("dirty_scan_concurrency", 5)
	v.SetDefault("cpu_reject_threshold_percent", 90.0)
	v.SetDefault("max_connections", 10000)
	v.SetDefault("session_rate_per_sec", 20.0)
	v.SetDefault("session_rate_burst", 40)

	v.SetConfigFile(a.ConfigPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read %s: %w", a.ConfigPath, err)
		}
		prelog.Info().Str("path", a.ConfigPath).Msg("no config file found, using defaults and environment")
	}

	v.SetEnvPrefix("SUDOKU")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if a.ListenAddr != "" {
		cfg.ListenAddr = a.ListenAddr
	}
	if a.LogLevel != "" {
		cfg.Logging.Level = a.LogLevel
	}
	return cfg, nil
}
