package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	Server ServerConfig `envconfig:"SERVER"`

	// Token verification for the live channel and REST routes
	JWT JWTConfig `envconfig:"JWT"`

	// Which persistence backend serves messages and notifications
	Store StoreConfig `envconfig:"STORE"`

	MongoDB MongoDBConfig `envconfig:"MONGO"`

	// MySQL backend, used when STORE_DRIVER=mysql
	Database DatabaseConfig `envconfig:"MYSQL"`

	// Presence tracking (optional)
	Redis RedisConfig `envconfig:"REDIS"`

	// Domain event publishing (optional)
	NATS NATSConfig `envconfig:"NATS"`

	Notification NotificationConfig `envconfig:"NOTIFICATION"`

	Realtime RealtimeConfig `envconfig:"REALTIME"`

	Logging LoggingConfig `envconfig:"LOG"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host         string        `split_words:"true"`
	Port         string        `split_words:"true" default:"5000"`
	GRPCPort     string        `split_words:"true" default:"7005"`
	ReadTimeout  time.Duration `split_words:"true" default:"15s"`
	WriteTimeout time.Duration `split_words:"true" default:"15s"`
	ClientURL    string        `split_words:"true" default:"http://localhost:3000"`
	Environment  string        `split_words:"true" default:"development"` // development, staging, production
}

type JWTConfig struct {
	Secret string        `split_words:"true" required:"true"`
	Issuer string        `split_words:"true" default:"candidnotes"`
	TTL    time.Duration `split_words:"true" default:"24h"`
}

type StoreConfig struct {
	Driver string `split_words:"true" default:"mongo"` // mongo, mysql, memory
}

type MongoDBConfig struct {
	URI            string        `split_words:"true"`
	Host           string        `split_words:"true" default:"localhost"`
	Port           string        `split_words:"true" default:"27017"`
	Username       string        `split_words:"true"`
	Password       string        `split_words:"true"`
	Database       string        `split_words:"true" default:"candidnotes"`
	ConnectTimeout time.Duration `split_words:"true" default:"10s"`
}

// DatabaseConfig contains MySQL connection configuration
type DatabaseConfig struct {
	Host         string `split_words:"true" default:"localhost"`
	Port         string `split_words:"true" default:"3306"`
	Username     string `split_words:"true" default:"candidnotes"`
	Password     string `split_words:"true"`
	DatabaseName string `split_words:"true" default:"candidnotes"`
	MaxOpenConns int    `split_words:"true" default:"25"`
	MaxIdleConns int    `split_words:"true" default:"5"`
}

type RedisConfig struct {
	Addr        string        `split_words:"true"`
	Password    string        `split_words:"true"`
	DB          int           `split_words:"true" default:"0"`
	PresenceTTL time.Duration `split_words:"true" default:"90s"`
}

type NATSConfig struct {
	URL           string        `split_words:"true"`
	SubjectPrefix string        `split_words:"true" default:"candidnotes"`
	MaxFailures   uint32        `split_words:"true" default:"5"`
	OpenTimeout   time.Duration `split_words:"true" default:"30s"`
}

// NotificationConfig contains notification fan-out configuration
type NotificationConfig struct {
	Workers   int `split_words:"true" default:"5"`    // Number of worker goroutines
	QueueSize int `split_words:"true" default:"1000"` // Per-worker queue size
}

type RealtimeConfig struct {
	SendBuffer    int           `split_words:"true" default:"256"`
	PingInterval  time.Duration `split_words:"true" default:"30s"`
	PongWait      time.Duration `split_words:"true" default:"60s"`
	WriteWait     time.Duration `split_words:"true" default:"10s"`
	ReadLimit     int64         `split_words:"true" default:"16384"`
	TypingTimeout time.Duration `split_words:"true" default:"0s"` // 0 relays typing state as-is
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `split_words:"true" default:"info"`   // debug, info, warn, error
	Format     string `split_words:"true" default:"text"`   // text, json, event
	Output     string `split_words:"true" default:"stdout"` // stdout, stderr, or file path
	MaxSizeMB  int    `split_words:"true" default:"10"`
	MaxBackups int    `split_words:"true" default:"3"`
	MaxAgeDays int    `split_words:"true" default:"28"`
	Compress   bool   `split_words:"true" default:"true"`
}

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.Store.Driver {
	case DriverMongo, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
	}

	if cfg.Notification.Workers < 1 {
		return fmt.Errorf("notification workers must be at least 1")
	}

	if cfg.Realtime.SendBuffer < 1 {
		return fmt.Errorf("realtime send buffer must be at least 1")
	}
	return nil
}

func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.URI != "" {
		return cfg.MongoDB.URI
	}

	if cfg.MongoDB.Username == "" {
		return fmt.Sprintf("mongodb://%s:%s/%s", cfg.MongoDB.Host, cfg.MongoDB.Port, cfg.MongoDB.Database)
	}

	return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
		cfg.MongoDB.Username,
		cfg.MongoDB.Password,
		cfg.MongoDB.Host,
		cfg.MongoDB.Port,
		cfg.MongoDB.Database,
	)
}
