package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestClockSeconds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		clock string
		want  int
	}{
		{"00:00", 0},
		{"12:30", 750},
		{"45:00+2:30", 2850},
		{"90:00+4:00", 5640},
		{"45", 2700},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClockSeconds(tc.clock), "clock %q", tc.clock)
	}
}

func TestFingerprint_PrefersEventID(t *testing.T) {
	t.Parallel()

	withID := Event{EventID: "ev-9", Time: "10:00", Type: "goal"}
	sameIDOtherFields := Event{EventID: "ev-9", Time: "11:00", Type: "card"}
	assert.Equal(t, Fingerprint(withID), Fingerprint(sameIDOtherFields))

	noID := Event{Time: "10:00", Type: "goal", Description: "1-0", HomeScore: intPtr(1), AwayScore: intPtr(0)}
	sameFields := Event{Time: "10:00", Type: "goal", Description: "1-0", HomeScore: intPtr(1), AwayScore: intPtr(0)}
	otherScore := Event{Time: "10:00", Type: "goal", Description: "1-0", HomeScore: intPtr(2), AwayScore: intPtr(0)}
	assert.Equal(t, Fingerprint(noID), Fingerprint(sameFields))
	assert.NotEqual(t, Fingerprint(noID), Fingerprint(otherScore))
}

func TestMergeEvents_Idempotent(t *testing.T) {
	t.Parallel()

	existing := []Event{
		{Time: "10:00", Type: "goal", Description: "Mål 1-0"},
		{Time: "01:00", Type: "kickoff", Description: "Avspark"},
	}
	incoming := []Event{
		{Time: "10:00", Type: "goal", Description: "Mål 1-0"},
		{Time: "23:30", Type: "card", Description: "Gult kort"},
	}

	once := MergeEvents(existing, incoming)
	twice := MergeEvents(once, incoming)

	require.Len(t, once, 3)
	assert.Equal(t, once, twice)
}

func TestMergeEvents_SortsLatestFirst(t *testing.T) {
	t.Parallel()

	merged := MergeEvents(nil, []Event{
		{Time: "05:00", Type: "a"},
		{Time: "45:00+1:00", Type: "c"},
		{Time: "30:00", Type: "b"},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "c", merged[0].Type)
	assert.Equal(t, "b", merged[1].Type)
	assert.Equal(t, "a", merged[2].Type)
}

func TestLatestEvent(t *testing.T) {
	t.Parallel()

	_, ok := LatestEvent(nil)
	assert.False(t, ok)

	latest, ok := LatestEvent([]Event{
		{Time: "12:00", Type: "early"},
		{Time: "88:00", Type: "late"},
	})
	require.True(t, ok)
	assert.Equal(t, "late", latest.Type)
}
