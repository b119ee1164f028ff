package matchfeed

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.db")

	store, err := OpenCursorStore(path)
	require.NoError(t, err)

	id, err := store.LastEventID()
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.SetLastEventID("evt-1042"))
	require.NoError(t, store.Close())

	// Survives reopen.
	store, err = OpenCursorStore(path)
	require.NoError(t, err)
	defer store.Close()

	id, err = store.LastEventID()
	require.NoError(t, err)
	assert.Equal(t, "evt-1042", id)
}
