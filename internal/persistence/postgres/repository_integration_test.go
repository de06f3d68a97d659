//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fitsession/internal/session"
	"example.com/fitsession/internal/treasure"
)

func TestRepositoryPersistsAndListsSessions(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fitsession"),
		postgrescontainer.WithUsername("fitsession"),
		postgrescontainer.WithPassword("fitsession"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	started := time.Date(2026, time.March, 1, 18, 0, 0, 0, time.UTC)
	summary := session.Summary{
		SessionID: "session-20260301-180000",
		StartedAt: started,
		Timebase: session.Timebase{
			StartMs:       started.UnixMilli(),
			IntervalMs:    5000,
			IntervalCount: 12,
		},
		Participants: map[string]string{"alice": "120|125|130"},
		Devices: map[string]map[string]string{
			"hr-1": {"heart_rate": "120|125|130"},
		},
		TreasureBox: treasure.Summary{
			TotalCoins:   15,
			CoinsByColor: map[string]int{"yellow": 15},
			CoinsByUser:  map[string]int{"alice": 15},
			CoinUnitMs:   5000,
		},
	}

	// First write is the autosave, second the final save with an end
	// time. Both land on the same row.
	require.NoError(t, repo.PersistSession(ctx, summary))

	ended := started.Add(time.Minute)
	summary.EndedAt = &ended
	summary.Timebase.IntervalCount = 13
	require.NoError(t, repo.PersistSession(ctx, summary))

	stored, err := repo.GetSession(ctx, summary.SessionID)
	require.NoError(t, err)
	require.Equal(t, summary.SessionID, stored.SessionID)
	require.Equal(t, 13, stored.Timebase.IntervalCount)
	require.NotNil(t, stored.EndedAt)
	require.Equal(t, "120|125|130", stored.Participants["alice"])
	require.Equal(t, 15, stored.TreasureBox.TotalCoins)

	records, err := repo.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, summary.SessionID, records[0].SessionID)
	require.Equal(t, 1, records[0].ParticipantCount)
	require.Equal(t, 15, records[0].TotalCoins)

	_, err = repo.GetSession(ctx, "session-unknown")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, repo.DeleteSession(ctx, summary.SessionID))
	require.ErrorIs(t, repo.DeleteSession(ctx, summary.SessionID), ErrSessionNotFound)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
}
