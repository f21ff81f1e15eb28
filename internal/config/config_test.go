package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORAGE_DRIVER", "LOCK_DRIVER", "KAFKA_BROKERS", "POSTGRES_DSN", "REDIS_ADDR", "LOCK_TIMEOUT_MS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.App.StorageDriver)
	assert.Equal(t, LockLocal, cfg.Lock.Driver)
	assert.Equal(t, 2*time.Second, cfg.Lock.Timeout())
	assert.Equal(t, "@every 1m", cfg.SLA.BreachPollSchedule)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/lifecycle")
	t.Setenv("LOCK_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOCK_TTL_MS", "1500")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("AUDIT_PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.App.StorageDriver)
	assert.Equal(t, 1500*time.Millisecond, cfg.Lock.TTL())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 100, cfg.SLA.AuditPageSize)
}

func TestLoadRejectsInconsistentDrivers(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"postgres without dsn", map[string]string{"STORAGE_DRIVER": "postgres", "POSTGRES_DSN": ""}, "POSTGRES_DSN"},
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"redis lock without addr", map[string]string{"LOCK_DRIVER": "redis", "REDIS_ADDR": ""}, "REDIS_ADDR"},
		{"unknown lock", map[string]string{"LOCK_DRIVER": "etcd"}, "LOCK_DRIVER"},
		{"bad redis db", map[string]string{"REDIS_DB": "x"}, "REDIS_DB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORAGE_DRIVER", "")
			t.Setenv("LOCK_DRIVER", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}
