package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"example.com/fitsession/internal/session"
)

func newTestCache(t *testing.T) *SnapshotCache {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	summary := session.Summary{
		SessionID: "session-20260301-180000",
		StartedAt: time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC),
		Participants: map[string]string{
			"alice": "120|125",
		},
	}
	require.NoError(t, c.StoreLatest(ctx, summary))

	got, err := c.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, summary.SessionID, got.SessionID)
	require.Equal(t, "120|125", got.Participants["alice"])
}

func TestSnapshotCacheClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.StoreLatest(ctx, session.Summary{SessionID: "session-x"}))
	require.NoError(t, c.Clear(ctx))

	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshotCacheNilClient(t *testing.T) {
	c := NewSnapshotCache(nil)
	ctx := context.Background()

	require.NoError(t, c.StoreLatest(ctx, session.Summary{SessionID: "session-x"}))
	_, err := c.Latest(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.NoError(t, c.Clear(ctx))
}

func TestConnect(t *testing.T) {
	require.Nil(t, Connect("", ""))
	client := Connect("localhost:6379", "")
	require.NotNil(t, client)
	_ = client.Close()
}
