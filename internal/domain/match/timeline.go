package match

import (
	"sort"
	"strconv"
	"strings"
)

// Fingerprint returns the dedup identity of an event: the upstream id when
// present, else a composite of its observable fields.
func Fingerprint(e Event) string {
	if id := strings.TrimSpace(e.EventID); id != "" {
		return "id:" + id
	}

	parts := []string{
		strings.TrimSpace(e.Time),
		strings.ToLower(strings.TrimSpace(e.Type)),
		strings.TrimSpace(e.Description),
		formatScore(e.HomeScore),
		formatScore(e.AwayScore),
	}
	return strings.Join(parts, "|")
}

func formatScore(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// ClockSeconds parses a textual clock position ("mm:ss", optionally with a
// "+overtime" suffix) into total seconds. Unparseable segments count as zero.
func ClockSeconds(clock string) int {
	total := 0
	for _, segment := range strings.Split(clock, "+") {
		total += parseClockSegment(segment)
	}
	return total
}

func parseClockSegment(segment string) int {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return 0
	}

	fields := strings.SplitN(segment, ":", 2)
	minutes, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || minutes < 0 {
		return 0
	}
	seconds := 0
	if len(fields) == 2 {
		if parsed, err := strconv.Atoi(strings.TrimSpace(fields[1])); err == nil && parsed >= 0 {
			seconds = parsed
		}
	}
	return minutes*60 + seconds
}

// MergeEvents folds incoming events into an existing history without
// duplicating or reordering. Merging the same incoming event twice produces
// the same result as merging it once.
func MergeEvents(existing, incoming []Event) []Event {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]Event, 0, len(existing)+len(incoming))

	for _, e := range existing {
		fp := Fingerprint(e)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range incoming {
		fp := Fingerprint(e)
		if _, ok := seen[fp]; ok {
			// Expected under redelivery/resync, not an error.
			continue
		}
		seen[fp] = struct{}{}
		merged = append(merged, e)
	}

	SortEventsLatestFirst(merged)
	return merged
}

// SortEventsLatestFirst orders events by descending parsed clock position.
func SortEventsLatestFirst(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return ClockSeconds(events[i].Time) > ClockSeconds(events[j].Time)
	})
}

// LatestEvent returns the event with the highest parsed clock position.
func LatestEvent(events []Event) (Event, bool) {
	if len(events) == 0 {
		return Event{}, false
	}

	best := events[0]
	bestClock := ClockSeconds(best.Time)
	for _, e := range events[1:] {
		if clock := ClockSeconds(e.Time); clock > bestClock {
			best = e
			bestClock = clock
		}
	}
	return best, true
}
