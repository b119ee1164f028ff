package match

import "strings"

// Timeline phrase lists used to derive live/halftime/finished transitions.
// The upstream status field lags behind the commentary feed, so free-text
// matching against these Swedish phrases is the ground truth. Fragile by
// nature; tracked as an open item with the upstream provider.
var (
	fullTimePhrases = []string{
		"matchen slut",
		"matchen är slut",
		"slutresultat",
		"full tid",
		"andra halvlek slut",
		"domaren blåser av",
	}
	halftimePhrases = []string{
		"första halvlek slut",
		"halvtid",
		"paus i matchen",
	}
	secondHalfStartPhrases = []string{
		"andra halvlek igång",
		"andra halvlek startar",
		"andra halvlek har startat",
		"avspark andra halvlek",
	}
)

// DeriveStatus combines the upstream status field with timeline analysis.
// Priority order, later steps overriding earlier ones:
//  1. the explicit field, synonym-normalized;
//  2. a full-time phrase anywhere forces FINISHED;
//  3. a halftime phrase on the chronologically latest event, with no
//     later second-half start, forces HALFTIME;
//  4. a second-half start phrase anywhere forces LIVE;
//  5. still unset: LIVE when any event exists, else UPCOMING.
func DeriveStatus(explicit string, events []Event) string {
	status := NormalizeStatus(explicit)

	if anyEventMatches(events, fullTimePhrases) {
		return StatusFinished
	}

	if latest, ok := LatestEvent(events); ok {
		if eventMatches(latest, halftimePhrases) && !secondHalfStartedAfter(events, ClockSeconds(latest.Time)) {
			return StatusHalftime
		}
	}

	if anyEventMatches(events, secondHalfStartPhrases) {
		return StatusLive
	}

	if status == StatusUnset {
		if len(events) > 0 {
			return StatusLive
		}
		return StatusUpcoming
	}
	return status
}

// secondHalfStartedAfter reports whether a second-half start event sits
// strictly later on the clock than the given position. The halftime signal is
// only cancelled by a start that actually follows it.
func secondHalfStartedAfter(events []Event, clock int) bool {
	for _, e := range events {
		if eventMatches(e, secondHalfStartPhrases) && ClockSeconds(e.Time) > clock {
			return true
		}
	}
	return false
}

func anyEventMatches(events []Event, phrases []string) bool {
	for _, e := range events {
		if eventMatches(e, phrases) {
			return true
		}
	}
	return false
}

func eventMatches(e Event, phrases []string) bool {
	text := strings.ToLower(e.Type + " " + e.Description)
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
