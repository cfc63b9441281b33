package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.DefaultTTL = time.Minute
	config.HealthCheckInterval = 0

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1"
	config.MaxRetries = 0

	_, err := NewManager(config, nil)
	assert.Error(t, err)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, DefaultConfig().Enabled())
	assert.True(t, Config{Addr: "localhost:6379"}.Enabled())
}

func TestManager_SetAndGet(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", 0))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)

	// ttl 为 0 使用默认过期时间
	assert.Equal(t, time.Minute, mr.TTL("test-key"))
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_Delete(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, manager.Delete(ctx, "k"))
	require.NoError(t, manager.Delete(ctx))
	assert.False(t, mr.Exists("k"))
}

func TestManager_IncrementHash(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	inc := HashIncrement{
		Ints:   map[string]int64{"interactions": 1, "input_tokens": 100},
		Floats: map[string]float64{"cost_usd": 0.25},
	}
	require.NoError(t, manager.IncrementHash(ctx, "session:s1", inc, time.Hour))
	require.NoError(t, manager.IncrementHash(ctx, "session:s1", inc, time.Hour))

	vals, err := manager.GetHash(ctx, "session:s1")
	require.NoError(t, err)
	assert.Equal(t, "2", vals["interactions"])
	assert.Equal(t, "200", vals["input_tokens"])
	cost, err := strconv.ParseFloat(vals["cost_usd"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cost, 1e-9)
	assert.Equal(t, time.Hour, mr.TTL("session:s1"))

	_, err = manager.GetHash(ctx, "session:none")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.IncrementHash(ctx, "k", HashIncrement{}, 0), ErrClosed)
}

func TestManager_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0
	config.HealthCheckInterval = 0
	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Ping(context.Background()))

	mr.Close()
	assert.Error(t, manager.Ping(context.Background()))
}
