package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration, read from GRIDREG_* variables.
type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	IPFS     IPFS
	Ledger   Ledger
	Kafka    Kafka
	Project  Project
	LogLevel string `env:"GRIDREG_LOG_LEVEL" envDefault:"info"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string `env:"GRIDREG_ADDR"           envDefault:":8080"`
	RateLimitRPS int    `env:"GRIDREG_RATE_LIMIT_RPS" envDefault:"100"`
}

type Database struct {
	URL          string        `env:"GRIDREG_DATABASE_URL,required"`
	MaxOpenConns int           `env:"GRIDREG_DB_MAX_OPEN_CONNS" envDefault:"25"`
	LockTimeout  time.Duration `env:"GRIDREG_LOCK_TIMEOUT"      envDefault:"3s"`
	TxTimeout    time.Duration `env:"GRIDREG_TX_TIMEOUT"        envDefault:"5s"`
}

// RedisConfig is optional; an empty URL disables the availability cache.
type RedisConfig struct {
	URL          string        `env:"GRIDREG_REDIS_URL"`
	CacheTTL     time.Duration `env:"GRIDREG_CACHE_TTL"           envDefault:"15s"`
	PoolSize     int           `env:"GRIDREG_REDIS_POOL_SIZE"     envDefault:"10"`
	MinIdleConns int           `env:"GRIDREG_REDIS_MIN_IDLE"      envDefault:"2"`
	DialTimeout  time.Duration `env:"GRIDREG_REDIS_DIAL_TIMEOUT"  envDefault:"2s"`
	ReadTimeout  time.Duration `env:"GRIDREG_REDIS_READ_TIMEOUT"  envDefault:"1s"`
	WriteTimeout time.Duration `env:"GRIDREG_REDIS_WRITE_TIMEOUT" envDefault:"1s"`
}

type IPFS struct {
	APIURL  string        `env:"GRIDREG_IPFS_API_URL" envDefault:"http://127.0.0.1:5001"`
	Timeout time.Duration `env:"GRIDREG_IPFS_TIMEOUT" envDefault:"10s"`
}

// Ledger is optional; an empty URL skips on-chain registration.
type Ledger struct {
	URL     string        `env:"GRIDREG_LEDGER_URL"`
	Token   string        `env:"GRIDREG_LEDGER_TOKEN"`
	Timeout time.Duration `env:"GRIDREG_LEDGER_TIMEOUT" envDefault:"10s"`
}

// Kafka is optional; without brokers outbox events are logged instead of published.
type Kafka struct {
	Brokers        []string      `env:"GRIDREG_KAFKA_BROKERS"   envSeparator:","`
	Topic          string        `env:"GRIDREG_KAFKA_TOPIC"     envDefault:"gridreg.events"`
	OutboxInterval time.Duration `env:"GRIDREG_OUTBOX_INTERVAL" envDefault:"2s"`
	OutboxBatch    int           `env:"GRIDREG_OUTBOX_BATCH"    envDefault:"100"`
}

type Project struct {
	IDPrefix string `env:"GRIDREG_PROJECT_ID_PREFIX" envDefault:"NCCR"`
}

// FromEnv loads an optional .env file, then parses the environment.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Database.LockTimeout <= 0 {
		return Config{}, errors.New("GRIDREG_LOCK_TIMEOUT must be positive")
	}
	if cfg.Database.TxTimeout < cfg.Database.LockTimeout {
		return Config{}, errors.New("GRIDREG_TX_TIMEOUT must not be shorter than GRIDREG_LOCK_TIMEOUT")
	}
	return cfg, nil
}
