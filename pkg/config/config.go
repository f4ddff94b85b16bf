package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "KDS"

type Config struct {
	DB     Postgres `yaml:"database" envconfig:"database"`
	RMQ    RabbitMQ `yaml:"rabbitmq" envconfig:"rabbitmq"`
	Local  Local    `yaml:"local" envconfig:"local"`
	Sync   Sync     `yaml:"sync" envconfig:"sync"`
	HTTP   HTTP     `yaml:"http" envconfig:"http"`
	Notify Notify   `yaml:"notify" envconfig:"notify"`
	Log    Log      `yaml:"log" envconfig:"log"`
}

type Postgres struct {
	Host     string `yaml:"host" envconfig:"host"`
	Port     string `yaml:"port" envconfig:"port"`
	User     string `yaml:"user" envconfig:"user"`
	Password string `yaml:"password" envconfig:"password"`
	Database string `yaml:"database" envconfig:"name"`
}

type RabbitMQ struct {
	User     string `yaml:"user" envconfig:"user"`
	Password string `yaml:"password" envconfig:"password"`
	Host     string `yaml:"host" envconfig:"host"`
	Port     string `yaml:"port" envconfig:"port"`
	VHost    string `yaml:"vhost" envconfig:"vhost"`
}

// Local describes the on-device replica.
type Local struct {
	Path string `yaml:"path" envconfig:"path"`
}

type Sync struct {
	BusinessID       string        `yaml:"business_id" envconfig:"business_id"`
	Timezone         string        `yaml:"timezone" envconfig:"timezone"`
	BusinessDayStart int           `yaml:"business_day_start_hour" envconfig:"business_day_start_hour"`
	Debounce         time.Duration `yaml:"debounce" envconfig:"debounce"`
	PullInterval     time.Duration `yaml:"pull_interval" envconfig:"pull_interval"`
	DrainInterval    time.Duration `yaml:"drain_interval" envconfig:"drain_interval"`
	ProbeInterval    time.Duration `yaml:"probe_interval" envconfig:"probe_interval"`
	OfflinePrefix    string        `yaml:"offline_prefix" envconfig:"offline_prefix"`
}

type HTTP struct {
	Port int `yaml:"port" envconfig:"port"`
}

type Notify struct {
	Enabled bool   `yaml:"enabled" envconfig:"enabled"`
	Queue   string `yaml:"queue" envconfig:"queue"`
}

type Log struct {
	Level string `yaml:"level" envconfig:"level"`
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	return &Config{
		DB: Postgres{
			Host:     "localhost",
			Port:     "5432",
			User:     "kds",
			Password: "kds",
			Database: "kds",
		},
		RMQ: RabbitMQ{
			User:     "guest",
			Password: "guest",
			Host:     "localhost",
			Port:     "5672",
		},
		Local: Local{Path: "kds.db"},
		Sync: Sync{
			Timezone:         "Local",
			BusinessDayStart: 5,
			Debounce:         500 * time.Millisecond,
			PullInterval:     30 * time.Second,
			DrainInterval:    15 * time.Second,
			ProbeInterval:    5 * time.Second,
			OfflinePrefix:    "L",
		},
		HTTP:   HTTP{Port: 3004},
		Notify: Notify{Enabled: true, Queue: "sms_queue"},
		Log:    Log{Level: "info"},
	}
}

// LoadConfig reads the yaml file on top of the defaults, then applies
// .env and KDS_* environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	if err := LoadDotEnv(cfg, ".env"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the dotenv file if it exists and applies environment overrides.
func LoadDotEnv(cfg *Config, path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Sync.BusinessID == "" {
		return fmt.Errorf("sync.business_id: %w", ErrFieldIsEmpty)
	}
	if c.Sync.BusinessDayStart < 0 || c.Sync.BusinessDayStart > 23 {
		return fmt.Errorf("sync.business_day_start_hour must be in [0, 23]: %d", c.Sync.BusinessDayStart)
	}
	if c.Sync.Debounce <= 0 || c.Sync.PullInterval <= 0 || c.Sync.DrainInterval <= 0 || c.Sync.ProbeInterval <= 0 {
		return errors.New("sync intervals must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port >= 65536 {
		return fmt.Errorf("http.port must be in [1, 65535]: %d", c.HTTP.Port)
	}
	if c.Local.Path == "" {
		return fmt.Errorf("local.path: %w", ErrFieldIsEmpty)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("sync.timezone: %w", err)
	}
	return nil
}

// Location resolves the configured business timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Sync.Timezone == "" || c.Sync.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Sync.Timezone)
}

var ErrFieldIsEmpty = errors.New("field is empty")
