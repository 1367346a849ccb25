package config

import "time"

// Messaging definition messaging_service YAML structure
type Messaging struct {
	Port string `mapstructure:"port"`

	Store     StoreConfig     `mapstructure:"store"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Limits    LimitConfig     `mapstructure:"limits"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Nats       NatsConfig     `mapstructure:"nats"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`

	JWTSecret string `mapstructure:"jwt_secret"`
}

// StoreConfig message store driver: mongo | memory
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// FeedConfig change feed driver: redis | nats | memory
type FeedConfig struct {
	Driver string `mapstructure:"driver"`
}

// TelemetryConfig telemetry sink driver: kafka | log
type TelemetryConfig struct {
	Driver    string `mapstructure:"driver"`
	QueueSize int    `mapstructure:"queue_size"`
}

// DirectoryConfig organization directory driver: pg | static
type DirectoryConfig struct {
	Driver string `mapstructure:"driver"`
	// Static organization -> member ids, only used by the static driver
	Static map[string][]string `mapstructure:"static"`
}

// LimitConfig request limits of the messaging use cases
type LimitConfig struct {
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`
	SearchMaxResults int           `mapstructure:"search_max_results"`
	DefaultPageSize  int           `mapstructure:"default_page_size"`
	MaxPageSize      int           `mapstructure:"max_page_size"`
	MaxContentLength int           `mapstructure:"max_content_length"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	// Addr single node address, sentinel settings from .env are used when empty
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// NatsConfig definition nats setting
type NatsConfig struct {
	URL           string `mapstructure:"url"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// DefaultLimits limits used when the YAML leaves them empty
func DefaultLimits() LimitConfig {
	return LimitConfig{
		SearchTimeout:    5 * time.Second,
		SearchMaxResults: 50,
		DefaultPageSize:  30,
		MaxPageSize:      100,
		MaxContentLength: 4000,
	}
}

// WithDefaults fill zero values with DefaultLimits, search results are capped at 50
func (l LimitConfig) WithDefaults() LimitConfig {
	d := DefaultLimits()
	if l.SearchTimeout <= 0 {
		l.SearchTimeout = d.SearchTimeout
	}
	if l.SearchMaxResults <= 0 || l.SearchMaxResults > d.SearchMaxResults {
		l.SearchMaxResults = d.SearchMaxResults
	}
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = d.DefaultPageSize
	}
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = d.MaxPageSize
	}
	if l.DefaultPageSize > l.MaxPageSize {
		l.DefaultPageSize = l.MaxPageSize
	}
	if l.MaxContentLength <= 0 {
		l.MaxContentLength = d.MaxContentLength
	}
	return l
}
