package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Broadcast.ConfigTTL)
	assert.Equal(t, 3*time.Second, cfg.Broadcast.StepTimeout)
	assert.Equal(t, 1024, cfg.Broadcast.QueueSize)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, int32(3), cfg.Kafka.Partitions)
	assert.Equal(t, 5, cfg.Kafka.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Kafka.BreakerCooldown)
	assert.Equal(t, "brigade", cfg.JWTIssuer)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("BRIGADE_ADDR", ":9090")
	t.Setenv("BROADCAST_CONFIG_TTL", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_POOL_SIZE", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FORWARD_TOPIC", "notify")
	t.Setenv("KAFKA_BREAKER_THRESHOLD", "2")
	t.Setenv("KAFKA_BREAKER_COOLDOWN", "15s")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.Broadcast.ConfigTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 3, cfg.Redis.PoolSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "notify", cfg.Broadcast.ForwardTopic)
	assert.Equal(t, 2, cfg.Kafka.BreakerThreshold)
	assert.Equal(t, 15*time.Second, cfg.Kafka.BreakerCooldown)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("BROADCAST_STEP_TIMEOUT", "soon")
		_, err := Parse()
		assert.Error(t, err)
	})

	t.Run("no workers", func(t *testing.T) {
		t.Setenv("DISPATCH_WORKERS", "0")
		_, err := Parse()
		assert.Error(t, err)
	})
}
