package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the order system
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	HTTP     HTTPConfig     `yaml:"http"`
	Order    OrderConfig    `yaml:"order"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig enables the Kafka event bus when brokers are set
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OrderConfig controls order numbering
type OrderConfig struct {
	// Sequencer is "postgres" or "redis".
	Sequencer string `yaml:"sequencer"`
	// Timezone decides where the business day starts.
	Timezone       string `yaml:"timezone"`
	NumberAttempts int    `yaml:"number_attempts"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	// Bus is "rabbitmq" or "kafka".
	Bus string `yaml:"bus"`
}

type RealtimeConfig struct {
	// Transport is "hub", "redis" or "rabbitmq".
	Transport        string `yaml:"transport"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration usable for local development
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "restaurant", Password: "restaurant", Database: "restaurant", MaxConns: 25, MinConns: 5},
		RabbitMQ: RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", Prefetch: 10},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Kafka:    KafkaConfig{Topic: "restaurant.order-events", GroupID: "inventory-worker"},
		HTTP:     HTTPConfig{Port: 3000, RequestTimeout: 30 * time.Second},
		Order:    OrderConfig{Sequencer: "postgres", Timezone: "Local", NumberAttempts: 3},
		Outbox:   OutboxConfig{PollInterval: time.Second, BatchSize: 50, Bus: "rabbitmq"},
		Realtime: RealtimeConfig{Transport: "hub", SubscriberBuffer: 64},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies environment overrides.
// A missing file is not an error; defaults and environment are used instead.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("DB_HOST", &c.Database.Host)
	setString("DB_USER", &c.Database.User)
	setString("DB_PASSWORD", &c.Database.Password)
	setString("DB_NAME", &c.Database.Database)
	setString("RABBITMQ_HOST", &c.RabbitMQ.Host)
	setString("RABBITMQ_USER", &c.RabbitMQ.User)
	setString("RABBITMQ_PASSWORD", &c.RabbitMQ.Password)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("KAFKA_BROKERS", &c.Kafka.Brokers)
	setString("ORDER_SEQUENCER", &c.Order.Sequencer)
	setString("ORDER_TIMEZONE", &c.Order.Timezone)
	setString("OUTBOX_BUS", &c.Outbox.Bus)
	setString("REALTIME_TRANSPORT", &c.Realtime.Transport)
	setString("LOG_LEVEL", &c.Log.Level)

	if err := setInt("DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	if err := setInt("RABBITMQ_PORT", &c.RabbitMQ.Port); err != nil {
		return err
	}
	return setInt("HTTP_PORT", &c.HTTP.Port)
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	switch c.Order.Sequencer {
	case "postgres", "redis":
	default:
		return fmt.Errorf("order.sequencer must be postgres or redis, got %q", c.Order.Sequencer)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("order.timezone: %w", err)
	}
	if c.Order.NumberAttempts < 1 {
		return fmt.Errorf("order.number_attempts must be at least 1")
	}
	switch c.Outbox.Bus {
	case "rabbitmq":
	case "kafka":
		if strings.TrimSpace(c.Kafka.Brokers) == "" {
			return fmt.Errorf("outbox.bus is kafka but kafka.brokers is empty")
		}
	default:
		return fmt.Errorf("outbox.bus must be rabbitmq or kafka, got %q", c.Outbox.Bus)
	}
	switch c.Realtime.Transport {
	case "hub", "redis", "rabbitmq":
	default:
		return fmt.Errorf("realtime.transport must be hub, redis or rabbitmq, got %q", c.Realtime.Transport)
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("outbox.batch_size and outbox.poll_interval must be positive")
	}
	return nil
}

// Location returns the business time zone used for day-scoped numbering
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Order.Timezone)
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
