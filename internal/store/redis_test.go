package store

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgchat/orgchat/internal/types"
)

func setupTestCounters(t *testing.T) *RedisCounters {
	s := miniredis.RunT(t)
	counters, err := NewRedisCounters("redis://" + s.Addr())
	require.NoError(t, err, "failed to create redis counter store")
	t.Cleanup(func() { counters.Close() })
	return counters
}

func TestNewRedisCountersBadURL(t *testing.T) {
	_, err := NewRedisCounters("not a url")
	assert.Error(t, err, "expected an error for an unparsable redis URL")
}

func TestNextUserNumber(t *testing.T) {
	counters := setupTestCounters(t)
	ctx := t.Context()

	n, err := counters.NextUserNumber(ctx, types.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expected numbering to start at 1 without seeding")

	n, err = counters.NextUserNumber(ctx, types.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestNextUserNumberPerRole(t *testing.T) {
	counters := setupTestCounters(t)
	ctx := t.Context()

	_, err := counters.NextUserNumber(ctx, types.RoleManager)
	require.NoError(t, err)
	_, err = counters.NextUserNumber(ctx, types.RoleManager)
	require.NoError(t, err)

	n, err := counters.NextUserNumber(ctx, types.RoleEmployee)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expected each role to have an independent counter")
}

func TestCountersPing(t *testing.T) {
	s := miniredis.RunT(t)
	counters, err := NewRedisCounters("redis://" + s.Addr())
	require.NoError(t, err)
	defer counters.Close()

	assert.NoError(t, counters.Ping(t.Context()))

	s.Close()
	assert.Error(t, counters.Ping(t.Context()), "expected ping to fail once the server is gone")
}
