package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the relay process
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// UpstreamConfig describes the market-data feed connection
type UpstreamConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

type RelayConfig struct {
	ServerName string        `mapstructure:"server_name"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Staleness  time.Duration `mapstructure:"staleness"`
}

// RedisConfig drives the optional latest-price mirror used by the REST layer
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig drives the optional tick firehose for analytics consumers
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")

	v.SetDefault("upstream.url", "wss://ws.finnhub.io")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.dial_timeout", 10*time.Second)
	v.SetDefault("upstream.ping_interval", 30*time.Second)
	v.SetDefault("upstream.reconnect_base", 1*time.Second)
	v.SetDefault("upstream.reconnect_max", 30*time.Second)
	v.SetDefault("upstream.max_reconnects", 10)

	v.SetDefault("relay.server_name", "price-relay")
	v.SetDefault("relay.send_buffer", 256)
	v.SetDefault("relay.staleness", 120*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 1*time.Hour)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")

	// Maps dot-notation to underscores (e.g., "upstream.url" -> "UPSTREAM_URL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind Env Vars so flat vars map into the nested structs
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level")
	bindEnv(v, "upstream.url", "upstream.token", "upstream.dial_timeout",
		"upstream.ping_interval", "upstream.reconnect_base",
		"upstream.reconnect_max", "upstream.max_reconnects")
	bindEnv(v, "relay.server_name", "relay.send_buffer", "relay.staleness")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("upstream url cannot be empty")
	}
	if cfg.Upstream.MaxReconnects <= 0 {
		return nil, fmt.Errorf("upstream max_reconnects must be positive")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty when kafka is enabled")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
