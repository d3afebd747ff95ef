package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MQConfig struct {
	URL string `yaml:"url"`
}

type QuotaConfig struct {
	MaxPer24h int `yaml:"max_per_24h"`
}

type RunnerConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	MetricsPort         string `yaml:"metrics_port"`
}

// PollInterval returns the poll interval as a duration.
func (r RunnerConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

type Config struct {
	DB     DBConfig     `yaml:"db"`
	Redis  RedisConfig  `yaml:"redis"`
	MQ     MQConfig     `yaml:"mq"`
	Quota  QuotaConfig  `yaml:"quota"`
	Runner RunnerConfig `yaml:"runner"`
}

func Load() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode %s: %v", path, err)
	}

	overrideFromEnv(&cfg)

	if cfg.Runner.PollIntervalSeconds <= 0 {
		cfg.Runner.PollIntervalSeconds = 30
	}
	if cfg.Runner.MetricsPort == "" {
		cfg.Runner.MetricsPort = "9091"
	}

	return &cfg
}

func overrideFromEnv(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DB.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.DB.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DB.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DB.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.DB.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.MQ.URL = url
	}

	if max := os.Getenv("QUOTA_MAX_PER_24H"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			cfg.Quota.MaxPer24h = m
		}
	}

	if interval := os.Getenv("RUNNER_POLL_INTERVAL_SECONDS"); interval != "" {
		if n, err := strconv.Atoi(interval); err == nil {
			cfg.Runner.PollIntervalSeconds = n
		}
	}
	if port := os.Getenv("RUNNER_METRICS_PORT"); port != "" {
		cfg.Runner.MetricsPort = port
	}
}
