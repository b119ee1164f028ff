package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klubbweb/matchcenter/internal/domain/archive"
)

// ArchiveRepository is the in-memory stand-in used when no database is
// configured, and in tests.
type ArchiveRepository struct {
	mu      sync.RWMutex
	records map[string]archive.Record
}

func NewArchiveRepository() *ArchiveRepository {
	return &ArchiveRepository{records: make(map[string]archive.Record)}
}

func (r *ArchiveRepository) Upsert(_ context.Context, record archive.Record) error {
	matchKey := strings.TrimSpace(record.MatchKey)
	if matchKey == "" {
		return fmt.Errorf("match key is required")
	}
	if record.ArchivedAt.IsZero() {
		record.ArchivedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.records[matchKey] = record
	r.mu.Unlock()
	return nil
}

func (r *ArchiveRepository) ListSince(_ context.Context, since time.Time, limit int) ([]archive.Record, error) {
	r.mu.RLock()
	records := make([]archive.Record, 0, len(r.records))
	for _, record := range r.records {
		if record.KickoffAt.Before(since) {
			continue
		}
		records = append(records, record)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].KickoffAt.After(records[j].KickoffAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *ArchiveRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, record := range r.records {
		if record.KickoffAt.Before(cutoff) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}
