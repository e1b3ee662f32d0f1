package config

import "time"

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"

	QueueBackendMemory   = "memory"
	QueueBackendPostgres = "postgres"
)

type Config struct {
	Env            string        `yaml:"env" env:"ENV" env-default:"local"`
	BotConfig      BotConfig     `yaml:"bot"`
	IntakeConfig   IntakeConfig  `yaml:"intake"`
	StorageConfig  StorageConfig `yaml:"storage"`
	DBConfig       DBConfig      `yaml:"db"`
	RedisConfig    RedisConfig   `yaml:"redis"`
	ConfigFilePath string        `yaml:"configFilePath" env:"CONFIG_FILEPATH" env-default:""`
	ConfigFileName string        `yaml:"configFileName" env:"CONFIG_FILENAME" env-default:""`
	configPath     string
}

type BotConfig struct {
	TgbotApiToken string  `yaml:"tgbot_apitoken" env:"BOT_TOKEN" env-required:"true"`
	Channel       string  `yaml:"channel" env:"CHANNEL_USERNAME" env-default:"@blacklistguests"`
	Admins        []int64 `yaml:"admins" env:"ADMIN_IDS" env-separator:","`
}

type IntakeConfig struct {
	CountriesFile string        `yaml:"countries_file" env:"COUNTRIES_FILE" env-default:"data/countries.json"`
	MaxPhotos     int           `yaml:"max_photos" env:"MAX_PHOTOS" env-default:"10"`
	SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"30m"`
}

type StorageConfig struct {
	SessionBackend  string `yaml:"session_backend" env:"SESSION_BACKEND" env-default:"memory"`
	QueueBackend    string `yaml:"queue_backend" env:"QUEUE_BACKEND" env-default:"memory"`
	QueueMaxPending int    `yaml:"queue_max_pending" env:"QUEUE_MAX_PENDING" env-default:"500"`
}

type DBConfig struct {
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"postgres"`
	User     string `yaml:"user" env:"DB_USER" env-default:"user"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"password"`
	Schema   string `yaml:"schema" env:"DB_SCHEMA" env-default:"guest_reports"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"intake:session:"`
}
