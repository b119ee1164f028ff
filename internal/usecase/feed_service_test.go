package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubbweb/matchcenter/internal/platform/cache"
	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/pubsub"
)

type stubFetcher struct {
	mu       sync.Mutex
	calls    int32
	snapshot RawSnapshot
	err      error
}

func (f *stubFetcher) FetchSnapshot(context.Context) (RawSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *stubFetcher) set(snap RawSnapshot) {
	f.mu.Lock()
	f.snapshot = snap
	f.mu.Unlock()
}

func newTestFeedService(t *testing.T, fetcher *stubFetcher) *FeedService {
	t.Helper()
	hub, err := pubsub.NewHub(0, 4)
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	return NewFeedService(
		logging.NewNop(),
		fetcher,
		cache.NewStore(time.Minute),
		hub,
		DefaultFeedServiceConfig(),
	)
}

func liveSnapshotWithEvents(n int, result string) RawSnapshot {
	events := make([]any, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, map[string]any{
			"eventId": "e-" + string(rune('a'+i)),
			"time":    "10:00",
			"type":    "Mål",
		})
	}
	record := map[string]any{
		"id":       "m-1",
		"teamType": "A-lag",
		"opponent": "BK Forward",
		"date":     "2026-09-12T15:00:00Z",
		"status":   "live",
		"events":   events,
	}
	if result != "" {
		record["result"] = result
	}
	return RawSnapshot{Current: []map[string]any{record}}
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "")}
	svc := newTestFeedService(t, fetcher)

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(context.Background(), false)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
}

func TestRegressionGuardRejectsShrunkenTimeline(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(5, "2-1")}
	svc := newTestFeedService(t, fetcher)

	first, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, first.Current, 1)
	require.Len(t, first.Current[0].Events, 5)

	fetcher.set(liveSnapshotWithEvents(3, "2-1"))
	snap, err := svc.Refresh(context.Background(), true)
	require.ErrorIs(t, err, ErrStaleData)

	// The previous good view survives.
	require.Len(t, snap.Current, 1)
	assert.Len(t, snap.Current[0].Events, 5)
}

func TestLedgerSweepForgetsStaleMatches(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(5, "2-1")}
	svc := newTestFeedService(t, fetcher)

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	fetcher.set(liveSnapshotWithEvents(3, "2-1"))
	_, err = svc.Refresh(context.Background(), true)
	require.ErrorIs(t, err, ErrStaleData)

	// Once the row ages past the sweep window the guard forgets the match
	// and the payload passes.
	svc.pruneLedger(time.Now().Add(time.Second))
	_, err = svc.Refresh(context.Background(), true)
	require.NoError(t, err)
}

func TestRegressionGuardRejectsClearedResult(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(2, "1-0")}
	svc := newTestFeedService(t, fetcher)

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	fetcher.set(liveSnapshotWithEvents(2, ""))
	_, err = svc.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, ErrStaleData)
}

func TestRegressionGuardAcceptsGrowth(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(2, "")}
	svc := newTestFeedService(t, fetcher)

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	fetcher.set(liveSnapshotWithEvents(4, "2-0"))
	snap, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, snap.Current, 1)
	assert.Len(t, snap.Current[0].Events, 4)
}

func TestQueryFiltersAndLimit(t *testing.T) {
	fetcher := &stubFetcher{snapshot: RawSnapshot{
		Current: []map[string]any{
			rawRecord("m-1", "A-lag", "Live FK", "2026-09-12T15:00:00Z", "live"),
			rawRecord("m-2", "A-lag", "Paus IF", "2026-09-12T17:00:00Z", "halvtid"),
			rawRecord("m-3", "A-lag", "Sen BK", "2026-09-19T15:00:00Z", "scheduled"),
		},
		Old: []map[string]any{
			rawRecord("m-0", "A-lag", "Klar IK", "2026-09-05T15:00:00Z", "finished"),
		},
	}}
	svc := newTestFeedService(t, fetcher)

	live, err := svc.Query(context.Background(), QueryOptions{DataType: "live"})
	require.NoError(t, err)
	require.Len(t, live, 2)

	old, err := svc.Query(context.Background(), QueryOptions{DataType: "old"})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "Klar IK", old[0].Opponent)

	all, err := svc.Query(context.Background(), QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Query(context.Background(), QueryOptions{DataType: "nonsense"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "")}
	svc := newTestFeedService(t, fetcher)

	sub := svc.Subscribe()
	defer sub.Close()

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	select {
	case snap := <-sub.Updates():
		require.Len(t, snap.Current, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSubscribeCloseStopsDelivery(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(1, "")}
	svc := newTestFeedService(t, fetcher)

	sub := svc.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	// Channel is closed; a receive must not yield a live snapshot.
	snap, open := <-sub.Updates()
	assert.False(t, open)
	assert.Empty(t, snap.Current)
}

func TestHandleEventBroadcastsOnlyOnChange(t *testing.T) {
	fetcher := &stubFetcher{snapshot: liveSnapshotWithEvents(0, "")}
	svc := newTestFeedService(t, fetcher)
	_, err := svc.Refresh(context.Background(), true)
	require.NoError(t, err)

	sub := svc.Subscribe()
	defer sub.Close()

	event := RawEvent{MatchID: "m-1", Fields: map[string]any{
		"eventId": "e-1", "time": "12:00", "type": "Mål",
	}}
	svc.HandleEvent(context.Background(), event, time.Now())

	select {
	case snap := <-sub.Updates():
		require.Len(t, snap.Current, 1)
		assert.Len(t, snap.Current[0].Events, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	// Duplicate event: no state change, no delivery.
	svc.HandleEvent(context.Background(), event, time.Now())
	select {
	case <-sub.Updates():
		t.Fatal("duplicate event must not broadcast")
	case <-time.After(100 * time.Millisecond):
	}
}
