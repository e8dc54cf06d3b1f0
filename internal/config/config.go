package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct shared by all settlement binaries; each binary
// reads only the sections it needs.
type Config struct {
	Bank      ServerConfig    `yaml:"bank"`
	Payment   PaymentConfig   `yaml:"payment"`
	Pledge    ServerConfig    `yaml:"pledge"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Relay     RelayConfig     `yaml:"relay"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PaymentConfig struct {
	Port int `yaml:"port"`
	// BankURL is the base URL of the bank service, e.g. http://bank:8081.
	BankURL string `yaml:"bank_url"`
	// WebhookURL is where synthesized settlement events are delivered;
	// normally the payment service's own webhook endpoint.
	WebhookURL string `yaml:"webhook_url"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// GroupPrefix namespaces consumer group ids per deployment.
	GroupPrefix string `yaml:"group_prefix"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type RelayConfig struct {
	BatchSize   int `yaml:"batch_size"`
	IntervalMS  int `yaml:"interval_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// Interval returns the relay poll interval with a 100ms default.
func (r RelayConfig) Interval() time.Duration {
	if r.IntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cfg.Relay.BatchSize <= 0 {
		cfg.Relay.BatchSize = 10
	}
	if cfg.Relay.MaxAttempts <= 0 {
		cfg.Relay.MaxAttempts = 10
	}
	return &cfg, nil
}
