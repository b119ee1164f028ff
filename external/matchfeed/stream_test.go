package matchfeed

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

type recordingHandler struct {
	mu        sync.Mutex
	snapshots []usecase.RawSnapshot
	deltas    [][]usecase.RawMatchUpdate
	events    []usecase.RawEvent
	connected []bool
}

func (h *recordingHandler) HandleSnapshot(_ context.Context, raw usecase.RawSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, raw)
	return nil
}

func (h *recordingHandler) HandleDelta(_ context.Context, updates []usecase.RawMatchUpdate, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deltas = append(h.deltas, updates)
}

func (h *recordingHandler) HandleEvent(_ context.Context, raw usecase.RawEvent, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, raw)
}

func (h *recordingHandler) SetStreamConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, connected)
}

func newTestStream(t *testing.T, handler StreamHandler, cursor *CursorStore) *Stream {
	t.Helper()
	stream, err := NewStream(StreamConfig{
		URL:    "ws://feed.example.se/stream",
		Logger: logging.NewNop(),
		Cursor: cursor,
	}, handler)
	require.NoError(t, err)
	return stream
}

func TestDispatchSnapshotEnvelope(t *testing.T) {
	handler := &recordingHandler{}
	stream := newTestStream(t, handler, nil)

	raw := []byte(`{
		"type": "snapshot",
		"lastEventId": "evt-10",
		"lastUpdated": "2026-09-12T16:00:00Z",
		"current": [{"id":"m-1"}],
		"old": [{"id":"m-0"}]
	}`)
	require.NoError(t, stream.dispatch(context.Background(), raw))

	require.Len(t, handler.snapshots, 1)
	assert.Len(t, handler.snapshots[0].Current, 1)
	assert.Len(t, handler.snapshots[0].Old, 1)
	assert.Equal(t, time.Date(2026, 9, 12, 16, 0, 0, 0, time.UTC), handler.snapshots[0].LastUpdated)
}

func TestDispatchDeltaAndEventEnvelopes(t *testing.T) {
	handler := &recordingHandler{}
	stream := newTestStream(t, handler, nil)

	require.NoError(t, stream.dispatch(context.Background(), []byte(`{
		"type": "delta",
		"matchUpdates": [
			{"type":"insert","matchId":"m-1","match":{"id":"m-1","status":"live"}},
			{"type":"update","matchId":"m-2","changes":{"result":"1-0"}},
			{"type":"delete","matchId":"m-3"}
		]
	}`)))
	require.Len(t, handler.deltas, 1)
	require.Len(t, handler.deltas[0], 3)
	assert.Equal(t, usecase.UpdateKindUpsert, handler.deltas[0][0].Kind)
	assert.Equal(t, "live", handler.deltas[0][0].Fields["status"])
	assert.Equal(t, usecase.UpdateKindUpsert, handler.deltas[0][1].Kind)
	assert.Equal(t, "1-0", handler.deltas[0][1].Fields["result"])
	assert.Equal(t, usecase.UpdateKindDelete, handler.deltas[0][2].Kind)
	assert.Equal(t, "m-3", handler.deltas[0][2].MatchID)

	require.NoError(t, stream.dispatch(context.Background(), []byte(`{
		"type": "missed_events",
		"events": [
			{"matchId":"m-1","time":"12:00","type":"Mål"},
			{"matchId":"m-1","time":"34:00","type":"Gult kort"}
		]
	}`)))
	require.Len(t, handler.events, 2)
	assert.Equal(t, "m-1", handler.events[0].MatchID)
	assert.Equal(t, "12:00", handler.events[0].Fields["time"])

	parsed, ok := usecase.ParseRawEvent(handler.events[0].Fields)
	require.True(t, ok)
	assert.Equal(t, "Mål", parsed.Type)
}

func TestDispatchPersistsCursor(t *testing.T) {
	cursor, err := OpenCursorStore(filepath.Join(t.TempDir(), "cursor.db"))
	require.NoError(t, err)
	defer cursor.Close()

	handler := &recordingHandler{}
	stream := newTestStream(t, handler, cursor)

	require.NoError(t, stream.dispatch(context.Background(), []byte(`{
		"type": "delta",
		"lastEventId": "evt-77",
		"matchUpdates": []
	}`)))

	id, err := cursor.LastEventID()
	require.NoError(t, err)
	assert.Equal(t, "evt-77", id)
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	handler := &recordingHandler{}
	stream := newTestStream(t, handler, nil)

	err := stream.dispatch(context.Background(), []byte(`{"type":"mystery"}`))
	assert.Error(t, err)
}

func TestDialURLCarriesCursor(t *testing.T) {
	cursor, err := OpenCursorStore(filepath.Join(t.TempDir(), "cursor.db"))
	require.NoError(t, err)
	defer cursor.Close()
	require.NoError(t, cursor.SetLastEventID("evt-42"))

	handler := &recordingHandler{}
	stream := newTestStream(t, handler, cursor)

	assert.Contains(t, stream.dialURL(), "sinceEventId=evt-42")

	bare := newTestStream(t, handler, nil)
	assert.Equal(t, "ws://feed.example.se/stream", bare.dialURL())
}
