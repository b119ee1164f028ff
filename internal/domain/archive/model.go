package archive

import "time"

// Record is one finished match persisted past the in-memory retention window.
type Record struct {
	MatchKey   string
	UpstreamID string
	TeamType   string
	Opponent   string
	Home       bool
	KickoffAt  time.Time
	Series     string
	Result     string
	EventCount int
	ArchivedAt time.Time
}
