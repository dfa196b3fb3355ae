package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStats(t *testing.T) *Stats {
	t.Helper()
	s, err := OpenStats(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStatsCount(t *testing.T) {
	s := newStats(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, 1, 7, "message", now))
	require.NoError(t, s.Record(ctx, 1, 7, "photo", now))
	require.NoError(t, s.Record(ctx, 1, 8, "command", now))
	require.NoError(t, s.Record(ctx, 1, 7, "user_join", now))
	require.NoError(t, s.Record(ctx, 1, 7, "message", now.Add(-2*time.Hour)))
	require.NoError(t, s.Record(ctx, 2, 7, "message", now))

	n, err := s.Count(ctx, 1, "messages", time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.Count(ctx, 1, "messages", time.Hour, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, 1, "messages", 3*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.Count(ctx, 1, "joins", time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Count(ctx, 1, "leaves", time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Count(ctx, 1, "frobs", time.Hour, 0)
	assert.Error(t, err)
}

func TestStatsAnonymousEvents(t *testing.T) {
	s := newStats(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, 1, 0, "message", time.Now()))

	n, err := s.Count(ctx, 1, "messages", time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// anonymous events never count toward a specific user
	n, err = s.Count(ctx, 1, "messages", time.Hour, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStatsPrune(t *testing.T) {
	s := newStats(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, 1, 7, "message", now.Add(-48*time.Hour)))
	require.NoError(t, s.Record(ctx, 1, 7, "message", now))

	dropped, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dropped)

	n, err := s.Count(ctx, 1, "messages", 72*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
