package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klubbweb/matchcenter/internal/infrastructure/repository/memory"
	"github.com/klubbweb/matchcenter/internal/platform/cache"
	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/pubsub"
	"github.com/klubbweb/matchcenter/internal/usecase"
)

type fixedFetcher struct {
	snapshot usecase.RawSnapshot
}

func (f *fixedFetcher) FetchSnapshot(context.Context) (usecase.RawSnapshot, error) {
	return f.snapshot, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	hub, err := pubsub.NewHub(0, 4)
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	fetcher := &fixedFetcher{snapshot: usecase.RawSnapshot{
		Current: []map[string]any{
			{"id": "m-1", "teamType": "A-lag", "opponent": "BK Forward", "date": "2026-09-12", "status": "live"},
			{"id": "m-2", "teamType": "Dam", "opponent": "Sen BK", "date": "2026-09-19", "status": "scheduled"},
		},
		Old: []map[string]any{
			{"id": "m-0", "teamType": "A-lag", "opponent": "Klar IK", "date": "2026-09-05", "status": "finished", "result": "1-0"},
		},
	}}

	feedService := usecase.NewFeedService(
		logging.NewNop(),
		fetcher,
		cache.NewStore(time.Minute),
		hub,
		usecase.DefaultFeedServiceConfig(),
	)

	handler := NewHandler(feedService, memory.NewArchiveRepository(), logging.NewNop())
	return NewRouter(handler, NewMatchStream(feedService, logging.NewNop()), logging.NewNop(), []string{"*"})
}

func doRequest(t *testing.T, router http.Handler, method, target string) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))

	var envelope responseEnvelope
	require.NoError(t, sonic.Unmarshal(recorder.Body.Bytes(), &envelope))
	return recorder, envelope
}

func TestListMatchesAll(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodGet, "/v1/matches")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, envelope.Error)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	matches, ok := data["matches"].([]any)
	require.True(t, ok)
	assert.Len(t, matches, 3)
}

func TestListMatchesLiveFilter(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodGet, "/v1/matches?dataType=live")
	require.Equal(t, http.StatusOK, recorder.Code)

	data := envelope.Data.(map[string]any)
	matches := data["matches"].([]any)
	require.Len(t, matches, 1)
	first := matches[0].(map[string]any)
	assert.Equal(t, "BK Forward", first["opponent"])
}

func TestListMatchesRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodGet, "/v1/matches?dataType=bogus")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalidInput", envelope.Error.Reason)

	recorder, envelope = doRequest(t, router, http.MethodGet, "/v1/matches?limit=abc")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	require.NotNil(t, envelope.Error)
}

func TestGetSnapshotBuckets(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodGet, "/v1/matches/snapshot")
	require.Equal(t, http.StatusOK, recorder.Code)

	data := envelope.Data.(map[string]any)
	assert.Len(t, data["current"].([]any), 2)
	assert.Len(t, data["old"].([]any), 1)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, envelope.Error)
}

func TestForceRefresh(t *testing.T) {
	router := newTestRouter(t)

	recorder, envelope := doRequest(t, router, http.MethodPost, "/v1/internal/refresh")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, envelope.Error)
}
