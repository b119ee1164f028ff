package usecase

import (
	"strconv"
	"strings"
	"time"

	"github.com/klubbweb/matchcenter/internal/domain/match"
)

// Accepted field spellings for raw upstream records, in priority order. The
// upstream mixes naming conventions between endpoints and feed generations;
// the first present key wins.
var (
	rawIDKeys        = []string{"id", "matchId", "match_id", "uid"}
	rawTeamTypeKeys  = []string{"teamType", "team_type", "team", "lag"}
	rawOpponentKeys  = []string{"opponent", "opponentName", "motstandare", "motståndare"}
	rawDateKeys      = []string{"date", "matchDate", "match_date", "datum"}
	rawTimeKeys      = []string{"time", "matchTime", "match_time", "tid", "startTime"}
	rawVenueKeys     = []string{"venue", "location", "arena", "plats"}
	rawSeriesKeys    = []string{"series", "serie", "competition", "league"}
	rawResultKeys    = []string{"result", "resultat", "score"}
	rawInfoURLKeys   = []string{"infoUrl", "info_url", "link", "url"}
	rawStreamURLKeys = []string{"streamUrl", "stream_url", "stream"}
	rawStatusKeys    = []string{"status", "matchStatus", "state"}
	rawHomeKeys      = []string{"isHome", "home", "hemmamatch"}
	// Legacy feed generations shipped the timeline under several names.
	rawEventsKeys = []string{"events", "matchEvents", "timeline", "handelser"}

	rawEventIDKeys     = []string{"eventId", "event_id", "id"}
	rawEventTimeKeys   = []string{"time", "clock", "tid"}
	rawEventTypeKeys   = []string{"type", "eventType", "typ"}
	rawEventDescKeys   = []string{"description", "text", "beskrivning"}
	rawEventHomeScores = []string{"homeScore", "home_score", "hemma"}
	rawEventAwayScores = []string{"awayScore", "away_score", "borta"}
)

// rawMatchFields is the typed intermediate extracted from an untrusted record
// before any domain logic runs.
type rawMatchFields struct {
	upstreamID string
	teamType   string
	opponent   string
	date       string
	timeOfDay  string
	venue      string
	series     string
	result     string
	infoURL    string
	streamURL  string
	status     string
	home       *bool
	events     []match.Event
}

// Normalize converts one raw upstream record into the canonical match shape.
// It fails closed: a record missing team type, opponent, or a parseable date
// yields ok=false and must be skipped by the caller, never treated as a batch
// error.
func Normalize(raw map[string]any) (match.Match, bool) {
	if len(raw) == 0 {
		return match.Match{}, false
	}

	fields := extractRawMatchFields(raw)
	if fields.teamType == "" || fields.opponent == "" {
		return match.Match{}, false
	}

	kickoff, ok := parseKickoff(fields.date, fields.timeOfDay)
	if !ok {
		return match.Match{}, false
	}

	opponent, home := resolveHomeAway(fields.opponent, fields.home)
	events := match.MergeEvents(nil, fields.events)

	m := match.Match{
		UpstreamID: fields.upstreamID,
		TeamType:   fields.teamType,
		Opponent:   opponent,
		Home:       home,
		KickoffAt:  kickoff,
		Venue:      fields.venue,
		Series:     fields.series,
		Result:     fields.result,
		InfoURL:    fields.infoURL,
		StreamURL:  fields.streamURL,
		Status:     match.DeriveStatus(fields.status, events),
		Events:     events,
	}
	m.Key = match.BuildKey(m.TeamType, m.KickoffAt, m.Opponent, m.Series)
	return m, true
}

// ParseRawEvent converts one raw timeline entry. A usable entry needs at
// least a clock position or a description.
func ParseRawEvent(raw map[string]any) (match.Event, bool) {
	if len(raw) == 0 {
		return match.Event{}, false
	}

	e := match.Event{
		EventID:     firstString(raw, rawEventIDKeys...),
		Time:        firstString(raw, rawEventTimeKeys...),
		Type:        firstString(raw, rawEventTypeKeys...),
		Description: firstString(raw, rawEventDescKeys...),
		HomeScore:   intField(raw, rawEventHomeScores...),
		AwayScore:   intField(raw, rawEventAwayScores...),
	}
	if e.Time == "" && e.Description == "" {
		return match.Event{}, false
	}
	return e, true
}

func extractRawMatchFields(raw map[string]any) rawMatchFields {
	fields := rawMatchFields{
		upstreamID: firstString(raw, rawIDKeys...),
		teamType:   firstString(raw, rawTeamTypeKeys...),
		opponent:   firstString(raw, rawOpponentKeys...),
		date:       firstString(raw, rawDateKeys...),
		timeOfDay:  firstString(raw, rawTimeKeys...),
		venue:      firstString(raw, rawVenueKeys...),
		series:     firstString(raw, rawSeriesKeys...),
		result:     firstString(raw, rawResultKeys...),
		infoURL:    firstString(raw, rawInfoURLKeys...),
		streamURL:  firstString(raw, rawStreamURLKeys...),
		status:     firstString(raw, rawStatusKeys...),
		home:       boolField(raw, rawHomeKeys...),
	}

	for _, key := range rawEventsKeys {
		items, ok := raw[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if event, ok := ParseRawEvent(entry); ok {
				fields.events = append(fields.events, event)
			}
		}
		break
	}

	return fields
}

// resolveHomeAway prefers the explicit flag; without one it falls back to a
// "(hemma)"/"(borta)" suffix on the opponent text. The suffix is stripped
// from the stored opponent either way.
func resolveHomeAway(opponent string, explicit *bool) (string, bool) {
	trimmed := strings.TrimSpace(opponent)
	lower := strings.ToLower(trimmed)

	suffixHome := strings.HasSuffix(lower, "(hemma)")
	suffixAway := strings.HasSuffix(lower, "(borta)")
	if suffixHome || suffixAway {
		trimmed = strings.TrimSpace(trimmed[:len(trimmed)-len("(hemma)")])
	}

	if explicit != nil {
		return trimmed, *explicit
	}
	return trimmed, suffixHome
}

func parseKickoff(date, timeOfDay string) (time.Time, bool) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, false
	}

	// Some feed generations pack the full timestamp into the date field.
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if parsed, err := time.Parse(layout, date); err == nil {
			return parsed.UTC(), true
		}
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, false
	}

	clock := strings.ReplaceAll(strings.TrimSpace(timeOfDay), ".", ":")
	if clock != "" {
		if parsed, err := time.Parse("15:04", clock); err == nil {
			day = day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute)
		}
	}
	return day.UTC(), true
}

func firstString(src map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := src[key]
		if !ok || raw == nil {
			continue
		}
		switch value := raw.(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		case int:
			return strconv.Itoa(value)
		case int64:
			return strconv.FormatInt(value, 10)
		}
	}
	return ""
}

func boolField(src map[string]any, keys ...string) *bool {
	for _, key := range keys {
		raw, ok := src[key]
		if !ok || raw == nil {
			continue
		}
		switch value := raw.(type) {
		case bool:
			v := value
			return &v
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				return &parsed
			}
		}
	}
	return nil
}

func intField(src map[string]any, keys ...string) *int {
	for _, key := range keys {
		raw, ok := src[key]
		if !ok || raw == nil {
			continue
		}
		switch value := raw.(type) {
		case float64:
			v := int(value)
			return &v
		case int:
			v := value
			return &v
		case int64:
			v := int(value)
			return &v
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
