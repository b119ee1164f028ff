package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/klubbweb/matchcenter/internal/domain/archive"
)

type ArchiveRepository struct {
	db *sqlx.DB
}

func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Upsert(ctx context.Context, record archive.Record) error {
	matchKey := strings.TrimSpace(record.MatchKey)
	if matchKey == "" {
		return fmt.Errorf("match key is required")
	}

	archivedAt := record.ArchivedAt.UTC()
	if archivedAt.IsZero() {
		archivedAt = time.Now().UTC()
	}

	model := archiveRecordModel{
		MatchKey:   matchKey,
		UpstreamID: strings.TrimSpace(record.UpstreamID),
		TeamType:   record.TeamType,
		Opponent:   record.Opponent,
		Home:       record.Home,
		KickoffAt:  record.KickoffAt.UTC(),
		Series:     record.Series,
		Result:     record.Result,
		EventCount: record.EventCount,
		ArchivedAt: archivedAt,
	}

	const query = `INSERT INTO match_archive (
    match_key, upstream_id, team_type, opponent, home,
    kickoff_at, series, result, event_count, archived_at
) VALUES (
    :match_key, :upstream_id, :team_type, :opponent, :home,
    :kickoff_at, :series, :result, :event_count, :archived_at
)
ON CONFLICT (match_key) DO UPDATE SET
    upstream_id = EXCLUDED.upstream_id,
    result = EXCLUDED.result,
    event_count = EXCLUDED.event_count,
    archived_at = EXCLUDED.archived_at`

	if _, err := r.db.NamedExecContext(ctx, query, model); err != nil {
		return fmt.Errorf("upsert archive record match_key=%s: %w", matchKey, err)
	}
	return nil
}

func (r *ArchiveRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]archive.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	const query = `SELECT match_key, upstream_id, team_type, opponent, home,
    kickoff_at, series, result, event_count, archived_at
FROM match_archive
WHERE kickoff_at >= $1
ORDER BY kickoff_at DESC
LIMIT $2`

	var models []archiveRecordModel
	if err := r.db.SelectContext(ctx, &models, query, since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list archive records: %w", err)
	}

	records := make([]archive.Record, 0, len(models))
	for _, model := range models {
		records = append(records, archive.Record{
			MatchKey:   model.MatchKey,
			UpstreamID: model.UpstreamID,
			TeamType:   model.TeamType,
			Opponent:   model.Opponent,
			Home:       model.Home,
			KickoffAt:  model.KickoffAt,
			Series:     model.Series,
			Result:     model.Result,
			EventCount: model.EventCount,
			ArchivedAt: model.ArchivedAt,
		})
	}
	return records, nil
}

func (r *ArchiveRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM match_archive WHERE kickoff_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete archive records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted archive records: %w", err)
	}
	return affected, nil
}
