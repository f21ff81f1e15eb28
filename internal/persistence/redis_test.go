package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
)

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		addr     string
		password string
		db       int
	}{
		{"host and port", config.RedisConfig{Addr: "localhost:6379", Password: "s3cret", DB: 2}, "localhost:6379", "s3cret", 2},
		{"url", config.RedisConfig{Addr: "redis://:fromurl@cache:6380/4"}, "cache:6380", "fromurl", 4},
		{"explicit values win over url", config.RedisConfig{Addr: "redis://:fromurl@cache:6380/4", Password: "override", DB: 1}, "cache:6380", "override", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := RedisOptions(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opts.Addr)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.db, opts.DB)
			assert.Positive(t, opts.ReadTimeout)
		})
	}

	_, err := RedisOptions(config.RedisConfig{Addr: "http://cache:6379"})
	assert.Error(t, err)
}

func TestRedisPingWithoutClient(t *testing.T) {
	var r *Redis
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}
