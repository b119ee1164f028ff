package match

import (
	"strings"
	"time"
)

const (
	StatusUpcoming = "UPCOMING"
	StatusLive     = "LIVE"
	StatusHalftime = "HALFTIME"
	StatusFinished = "FINISHED"

	// StatusUnset marks a record whose upstream status field was missing or
	// unrecognized; timeline analysis decides the final value.
	StatusUnset = ""
)

// Event is one scoreboard/timeline entry of a match.
type Event struct {
	EventID     string `json:"eventId,omitempty"`
	Time        string `json:"time"`
	Type        string `json:"type"`
	Description string `json:"description"`
	HomeScore   *int   `json:"homeScore,omitempty"`
	AwayScore   *int   `json:"awayScore,omitempty"`
}

// Match is the canonical entity every raw upstream record normalizes into.
type Match struct {
	Key        string    `json:"key"`
	UpstreamID string    `json:"upstreamId,omitempty"`
	TeamType   string    `json:"teamType"`
	Opponent   string    `json:"opponent"`
	Home       bool      `json:"home"`
	KickoffAt  time.Time `json:"kickoffAt"`
	Venue      string    `json:"venue,omitempty"`
	Series     string    `json:"series,omitempty"`
	Result     string    `json:"result,omitempty"`
	InfoURL    string    `json:"infoUrl,omitempty"`
	StreamURL  string    `json:"streamUrl,omitempty"`
	Status     string    `json:"status"`
	Events     []Event   `json:"events,omitempty"`
}

// Finished reports whether the match belongs in the old bucket.
func (m Match) Finished() bool {
	return m.Status == StatusFinished
}

// BuildKey derives the composite identity of a match. It is stable across
// re-fetches even when the upstream assigns no id of its own.
func BuildKey(teamType string, kickoffAt time.Time, opponent, series string) string {
	parts := []string{
		normalizeKeyPart(teamType),
		kickoffAt.UTC().Format("2006-01-02"),
		kickoffAt.UTC().Format("15:04"),
		normalizeKeyPart(opponent),
		normalizeKeyPart(series),
	}
	return strings.Join(parts, "|")
}

func normalizeKeyPart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), "-")
}

// NormalizeStatus maps upstream status spellings onto the canonical set.
// Unrecognized values yield StatusUnset so timeline analysis can decide.
func NormalizeStatus(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "live", "ongoing", "inplay", "in_play", "in play", "pågående", "pagaende":
		return StatusLive
	case "finished", "completed", "ended", "final", "fulltime", "full_time", "ft", "slut", "slutspelad":
		return StatusFinished
	case "halftime", "half_time", "half time", "paused", "break", "ht", "halvtid", "paus":
		return StatusHalftime
	case "upcoming", "scheduled", "notstarted", "not_started", "kommande", "ej startad":
		return StatusUpcoming
	default:
		return StatusUnset
	}
}
