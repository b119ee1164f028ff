package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoadsAndFilters(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "")}
	svc := newTestFeedService(t, fetcher)

	w := svc.Watch(WatchOptions{DataType: "live", Enabled: true})
	defer w.Close()

	require.Eventually(t, func() bool {
		return !w.View().Loading
	}, time.Second, 10*time.Millisecond)

	view := w.View()
	require.Len(t, view.Matches, 1)
	assert.Equal(t, "BK Forward", view.Matches[0].Opponent)
	assert.NoError(t, view.Err)
}

func TestWatchDisabledIsInert(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := newTestFeedService(t, fetcher)

	w := svc.Watch(WatchOptions{DataType: "all", Enabled: false})
	defer w.Close()

	view := w.View()
	assert.False(t, view.Loading)
	assert.Empty(t, view.Matches)
	assert.Zero(t, fetcher.calls)
}

func TestWatchKeepsLastGoodOnError(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "1-0")}
	svc := newTestFeedService(t, fetcher)

	w := svc.Watch(WatchOptions{DataType: "current", Enabled: true})
	defer w.Close()

	require.Eventually(t, func() bool {
		return !w.View().Loading
	}, time.Second, 10*time.Millisecond)

	// The initial hub push may still be in flight; keep injecting until the
	// failure sticks.
	require.Eventually(t, func() bool {
		w.apply(svc.Snapshot(), ErrDependencyUnavailable)
		return w.View().Err != nil
	}, time.Second, 20*time.Millisecond)

	view := w.View()
	require.Len(t, view.Matches, 1)
	assert.ErrorIs(t, view.Err, ErrDependencyUnavailable)
	assert.False(t, view.Loading)
}

func TestWatchCloseIsIdempotent(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "")}
	svc := newTestFeedService(t, fetcher)

	w := svc.Watch(WatchOptions{DataType: "all", Enabled: true})
	w.Close()
	w.Close()
}

func TestFallbackPollerJittersInterval(t *testing.T) {
	p := NewFallbackPoller(nil, 30*time.Second)

	for i := 0; i < 50; i++ {
		got := p.interval()
		assert.GreaterOrEqual(t, got, 27*time.Second)
		assert.Less(t, got, 33*time.Second)
	}
}
