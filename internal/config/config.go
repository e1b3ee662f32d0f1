package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"slices"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

func MustLoad() *Config {
	op := "config.MustLoad()"
	log := slog.With(
		slog.String("op", op),
	)

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using process environment")
	}

	configPath := fetchConfigPath()
	if configPath == "" {
		log.Warn("config path is empty. Reading configuration from environment only")
	}

	cfg, err := Load(configPath)
	if err != nil {
		stdFatal(err)
	}
	return cfg
}

// Load reads configuration from configPath when the file exists and from the
// environment otherwise. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	op := "config.Load()"
	var cfg Config

	useFile := false
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			useFile = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: stat %s: %w", op, configPath, err)
		}
	}

	if useFile {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read config: %w", op, err)
		}
		cfg.configPath = configPath
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: cannot read env: %w", op, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.StorageConfig.SessionBackend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", cfg.StorageConfig.SessionBackend)
	}
	switch cfg.StorageConfig.QueueBackend {
	case QueueBackendMemory, QueueBackendPostgres:
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.StorageConfig.QueueBackend)
	}
	if cfg.IntakeConfig.MaxPhotos <= 0 {
		return fmt.Errorf("max photos must be positive, got %d", cfg.IntakeConfig.MaxPhotos)
	}
	if cfg.StorageConfig.QueueMaxPending < 0 {
		return fmt.Errorf("queue max pending must not be negative, got %d", cfg.StorageConfig.QueueMaxPending)
	}
	return nil
}

// IsAdmin reports whether userID is one of the configured administrators.
func (cfg *Config) IsAdmin(userID int64) bool {
	return slices.Contains(cfg.BotConfig.Admins, userID)
}

// Path returns the config file the configuration was read from, if any.
func (cfg *Config) Path() string {
	return cfg.configPath
}

func fetchConfigPath() string {
	op := "config.fetchConfigPath()"
	log := slog.With(
		slog.String("op", op),
	)

	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res != "" {
		log.Info("load config path from command line.",
			slog.String("path", res))
		return res
	}
	res = fmt.Sprintf("%s%s",
		os.Getenv("CONFIG_FILEPATH"),
		os.Getenv("CONFIG_FILENAME"))
	log.Info(
		"load config path from env",
		slog.String("CONFIG_FILEPATH", os.Getenv("CONFIG_FILEPATH")),
		slog.String("CONFIG_FILENAME", os.Getenv("CONFIG_FILENAME")),
	)
	return res
}

func stdFatal(err error) {
	log.Fatalf("cannot load config: %s", err.Error())
}
