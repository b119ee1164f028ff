package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestMatch_Finished(t *testing.T) {
	t.Parallel()

	require.True(t, Match{Status: StatusFinished}.Finished())
	require.False(t, Match{Status: StatusLive}.Finished())
	require.False(t, Match{Status: StatusHalftime}.Finished())
	require.False(t, Match{Status: StatusUpcoming}.Finished())
}
