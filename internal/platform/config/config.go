package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `env:"BRIGADE_ADDR" envDefault:":8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"brigade"`
	JWTAudience   string `env:"JWT_AUDIENCE" envDefault:"brigade-api"`
	DatabaseURL   string `env:"DATABASE_URL"`

	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Broadcast BroadcastConfig
}

// RedisConfig configures the client used for cross-replica cache invalidation.
// An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the forward channel. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS" envSeparator:","`
	Partitions        int32    `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`

	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"1m"`
}

// BroadcastConfig tunes the engine itself.
type BroadcastConfig struct {
	ConfigTTL           time.Duration `env:"BROADCAST_CONFIG_TTL" envDefault:"5m"`
	StepTimeout         time.Duration `env:"BROADCAST_STEP_TIMEOUT" envDefault:"3s"`
	QueueSize           int           `env:"DISPATCH_QUEUE_SIZE" envDefault:"1024"`
	Workers             int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	InvalidationChannel string        `env:"INVALIDATION_CHANNEL" envDefault:"brigade:broadcast-config:invalidate"`
	ForwardTopic        string        `env:"FORWARD_TOPIC" envDefault:"brigade.notifications.forward"`
	FeedCapacity        int           `env:"FEED_CAPACITY" envDefault:"200"`
}

// FromEnv loads .env when present, then parses the environment.
func FromEnv() (Server, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Broadcast.Workers <= 0 {
		return Server{}, fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", cfg.Broadcast.Workers)
	}
	if cfg.Broadcast.QueueSize <= 0 {
		return Server{}, fmt.Errorf("DISPATCH_QUEUE_SIZE must be positive, got %d", cfg.Broadcast.QueueSize)
	}
	return cfg, nil
}
