package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubbweb/matchcenter/internal/domain/archive"
)

func TestArchiveRepositoryUpsertAndList(t *testing.T) {
	repo := NewArchiveRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, archive.Record{
		MatchKey:  "a-lag|2026-09-05|klar-ik",
		Opponent:  "Klar IK",
		KickoffAt: time.Date(2026, 9, 5, 15, 0, 0, 0, time.UTC),
		Result:    "1-0",
	}))
	require.NoError(t, repo.Upsert(ctx, archive.Record{
		MatchKey:  "a-lag|2026-09-12|bk-forward",
		Opponent:  "BK Forward",
		KickoffAt: time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC),
		Result:    "2-1",
	}))

	// Upsert replaces by key.
	require.NoError(t, repo.Upsert(ctx, archive.Record{
		MatchKey:  "a-lag|2026-09-12|bk-forward",
		Opponent:  "BK Forward",
		KickoffAt: time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC),
		Result:    "3-1",
	}))

	records, err := repo.ListSince(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "3-1", records[0].Result)
	assert.Equal(t, "Klar IK", records[1].Opponent)

	err = repo.Upsert(ctx, archive.Record{})
	assert.Error(t, err)
}

func TestArchiveRepositoryDeleteOlderThan(t *testing.T) {
	repo := NewArchiveRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, archive.Record{
		MatchKey:  "gammal",
		KickoffAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, repo.Upsert(ctx, archive.Record{
		MatchKey:  "ny",
		KickoffAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}))

	deleted, err := repo.DeleteOlderThan(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := repo.ListSince(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ny", records[0].MatchKey)
}
