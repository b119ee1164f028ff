package matchfeed

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var cursorBucket = []byte("stream_cursor")

const cursorKey = "last_event_id"

// CursorStore persists the last processed stream event id so a restarted
// process can ask upstream for the events it missed.
type CursorStore struct {
	db *bolt.DB
}

func OpenCursorStore(path string) (*CursorStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cursor store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cursorBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cursor bucket: %w", err)
	}

	return &CursorStore{db: db}, nil
}

func (s *CursorStore) LastEventID() (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(cursorBucket).Get([]byte(cursorKey))
		value = string(raw)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read cursor: %w", err)
	}
	return value, nil
}

func (s *CursorStore) SetLastEventID(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cursorBucket).Put([]byte(cursorKey), []byte(id))
	})
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

func (s *CursorStore) Close() error {
	return s.db.Close()
}
