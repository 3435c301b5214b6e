package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Gateway struct {
		Endpoints         []string `yaml:"endpoints"`
		Username          string   `yaml:"username"`
		Password          string   `yaml:"password"`
		TimeoutSeconds    int      `yaml:"timeout_seconds"`
		FailoverThreshold int      `yaml:"failover_threshold"`
	} `yaml:"gateway"`
	Ledger struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ledger"`
	Polling struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		MaxAttempts     int `yaml:"max_attempts"`
	} `yaml:"polling"`
	Worker struct {
		IntervalSeconds     int `yaml:"interval_seconds"`
		StaleAfterSeconds   int `yaml:"stale_after_seconds"`
		AbandonAfterSeconds int `yaml:"abandon_after_seconds"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if len(cfg.Gateway.Endpoints) == 0 || cfg.Gateway.Username == "" || cfg.Gateway.Password == "" {
		return nil, errors.New("gateway config is incomplete")
	}
	if cfg.Ledger.BaseURL == "" {
		return nil, errors.New("ledger.base_url is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 10
	}
	if cfg.Ledger.TimeoutSeconds <= 0 {
		cfg.Ledger.TimeoutSeconds = 10
	}
	if cfg.Polling.IntervalSeconds <= 0 {
		cfg.Polling.IntervalSeconds = 3
	}
	if cfg.Polling.MaxAttempts <= 0 {
		cfg.Polling.MaxAttempts = 10
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 60
	}
	if cfg.Worker.StaleAfterSeconds <= 0 {
		cfg.Worker.StaleAfterSeconds = 120
	}
	if cfg.Worker.AbandonAfterSeconds <= 0 {
		cfg.Worker.AbandonAfterSeconds = 3600
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("GATEWAY_ENDPOINTS"); v != "" {
		cfg.Gateway.Endpoints = splitCommaList(v)
	}
	if v := os.Getenv("GATEWAY_USERNAME"); v != "" {
		cfg.Gateway.Username = v
	}
	if v := os.Getenv("GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); v != "" {
		cfg.Gateway.TimeoutSeconds = atoiOr(cfg.Gateway.TimeoutSeconds, v)
	}
	if v := os.Getenv("GATEWAY_FAILOVER_THRESHOLD"); v != "" {
		cfg.Gateway.FailoverThreshold = atoiOr(cfg.Gateway.FailoverThreshold, v)
	}
	if v := os.Getenv("LEDGER_BASE_URL"); v != "" {
		cfg.Ledger.BaseURL = v
	}
	if v := os.Getenv("LEDGER_TIMEOUT_SECONDS"); v != "" {
		cfg.Ledger.TimeoutSeconds = atoiOr(cfg.Ledger.TimeoutSeconds, v)
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		cfg.Polling.IntervalSeconds = atoiOr(cfg.Polling.IntervalSeconds, v)
	}
	if v := os.Getenv("POLL_MAX_ATTEMPTS"); v != "" {
		cfg.Polling.MaxAttempts = atoiOr(cfg.Polling.MaxAttempts, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoiOr(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_STALE_AFTER_SECONDS"); v != "" {
		cfg.Worker.StaleAfterSeconds = atoiOr(cfg.Worker.StaleAfterSeconds, v)
	}
	if v := os.Getenv("WORKER_ABANDON_AFTER_SECONDS"); v != "" {
		cfg.Worker.AbandonAfterSeconds = atoiOr(cfg.Worker.AbandonAfterSeconds, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
