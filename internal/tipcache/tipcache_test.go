package tipcache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/fitquest-api/internal/logger"
)

func exerciseCache(t *testing.T, c Cache, userID int) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, userID, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, userID, "2025-03-10", "Eat more greens"))
	tip, ok, err := c.Get(ctx, userID, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Eat more greens", tip)

	_, ok, err = c.Get(ctx, userID, "2025-03-11")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseCache(t, m, 1)

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, 1, "2025-03-11", "Sleep well"))
	require.NoError(t, m.Set(ctx, 12, "2025-03-10", "Other user"))
	_, ok, _ := m.Get(ctx, 1, "2025-03-10")
	assert.False(t, ok, "previous day should be dropped")
	tip, ok, _ := m.Get(ctx, 12, "2025-03-10")
	assert.True(t, ok)
	assert.Equal(t, "Other user", tip)
	assert.Len(t, m.tips, 2)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tip:42:2025-03-10", key(42, "2025-03-10"))
}

func TestNewRedis_MissingAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), "", time.Hour, logger.Nop())
	assert.ErrorContains(t, err, "REDIS_ADDR")
}

// TestRedis needs a running server; set REDIS_ADDR to run it.
func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), addr, time.Minute, logger.Nop())
	require.NoError(t, err)
	defer r.Close()

	userID := int(time.Now().UnixNano() % 1_000_000)
	t.Cleanup(func() { r.rdb.Del(context.Background(), key(userID, "2025-03-10")) })
	exerciseCache(t, r, userID)
}
