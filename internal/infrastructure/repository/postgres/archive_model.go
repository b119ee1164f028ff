package postgres

import "time"

type archiveRecordModel struct {
	MatchKey   string    `db:"match_key"`
	UpstreamID string    `db:"upstream_id"`
	TeamType   string    `db:"team_type"`
	Opponent   string    `db:"opponent"`
	Home       bool      `db:"home"`
	KickoffAt  time.Time `db:"kickoff_at"`
	Series     string    `db:"series"`
	Result     string    `db:"result"`
	EventCount int       `db:"event_count"`
	ArchivedAt time.Time `db:"archived_at"`
}
