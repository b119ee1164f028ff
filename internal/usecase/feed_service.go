package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/klubbweb/matchcenter/internal/domain/archive"
	"github.com/klubbweb/matchcenter/internal/domain/match"
	"github.com/klubbweb/matchcenter/internal/platform/cache"
	"github.com/klubbweb/matchcenter/internal/platform/logging"
	"github.com/klubbweb/matchcenter/internal/platform/pubsub"
)

const snapshotCacheKey = "matchfeed:snapshot"

// SnapshotFetcher pulls a full match payload from the upstream feed.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (RawSnapshot, error)
}

// ChangeNotifier is told about every snapshot that actually changed state.
type ChangeNotifier interface {
	NotifyChanged(ctx context.Context, snap Snapshot) error
}

// FeedServiceConfig controls caching, retention, and the fallback poll loop.
// Retention/CleanupEvery govern the long-lived match set; LedgerTTL/SweepEvery
// govern the short-lived regression ledger and cache entries.
type FeedServiceConfig struct {
	CacheTTL       time.Duration
	Retention      time.Duration
	CleanupEvery   time.Duration
	LedgerTTL      time.Duration
	SweepEvery     time.Duration
	FallbackEvery  time.Duration
	SubscriberSlot int
}

func DefaultFeedServiceConfig() FeedServiceConfig {
	return FeedServiceConfig{
		CacheTTL:      10 * time.Second,
		Retention:     90 * 24 * time.Hour,
		CleanupEvery:  time.Hour,
		LedgerTTL:     15 * time.Minute,
		SweepEvery:    time.Minute,
		FallbackEvery: 30 * time.Second,
	}
}

// matchLedger records the high-water mark per match used by the regression
// guard: once a result and a number of events have been observed, a later
// payload may not walk them back.
type matchLedger struct {
	events int
	result string
	seenAt time.Time
}

// FeedService is the consumer-facing core: it owns the reconciled snapshot,
// the short-lived cache in front of upstream fetches, and fan-out to
// subscribers.
type FeedService struct {
	logger  *logging.Logger
	fetcher SnapshotFetcher
	store   *cache.Store
	hub     *pubsub.Hub
	rec     *Reconciler

	archiveRepo archive.Repository
	notifier    ChangeNotifier

	cfg FeedServiceConfig

	ledgerMu sync.Mutex
	ledger   map[string]matchLedger

	streamMu        sync.Mutex
	streamConnected bool

	archivedMu sync.Mutex
	archived   map[string]int
}

func NewFeedService(
	logger *logging.Logger,
	fetcher SnapshotFetcher,
	store *cache.Store,
	hub *pubsub.Hub,
	cfg FeedServiceConfig,
) *FeedService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultFeedServiceConfig().CacheTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultFeedServiceConfig().Retention
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = DefaultFeedServiceConfig().CleanupEvery
	}
	if cfg.LedgerTTL <= 0 {
		cfg.LedgerTTL = DefaultFeedServiceConfig().LedgerTTL
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultFeedServiceConfig().SweepEvery
	}
	if cfg.FallbackEvery <= 0 {
		cfg.FallbackEvery = DefaultFeedServiceConfig().FallbackEvery
	}

	return &FeedService{
		logger:   logger,
		fetcher:  fetcher,
		store:    store,
		hub:      hub,
		rec:      NewReconciler(),
		cfg:      cfg,
		ledger:   make(map[string]matchLedger),
		archived: make(map[string]int),
	}
}

// WithArchive enables durable storage of finished matches.
func (s *FeedService) WithArchive(repo archive.Repository) *FeedService {
	s.archiveRepo = repo
	return s
}

// WithNotifier enables outbound change notifications.
func (s *FeedService) WithNotifier(notifier ChangeNotifier) *FeedService {
	s.notifier = notifier
	return s
}

// Refresh returns the reconciled snapshot, fetching from upstream when the
// cache is cold or bypass is set. Concurrent cold-cache callers share one
// upstream request. A payload rejected by the regression guard leaves the
// previous snapshot in place and surfaces ErrStaleData.
func (s *FeedService) Refresh(ctx context.Context, bypassCache bool) (Snapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "FeedService.Refresh")
	defer span.End()

	if bypassCache {
		snap, err := s.fetchAndApply(ctx)
		if err != nil {
			return s.rec.Snapshot(), err
		}
		s.store.SetWithTTL(ctx, snapshotCacheKey, snap, s.cfg.CacheTTL)
		return snap, nil
	}

	value, err := s.store.GetOrLoad(ctx, snapshotCacheKey, func(ctx context.Context) (any, error) {
		return s.fetchAndApply(ctx)
	})
	if err != nil {
		return s.rec.Snapshot(), err
	}
	snap, ok := value.(Snapshot)
	if !ok {
		return s.rec.Snapshot(), fmt.Errorf("%w: unexpected cached snapshot type", ErrDependencyUnavailable)
	}
	return snap, nil
}

func (s *FeedService) fetchAndApply(ctx context.Context) (Snapshot, error) {
	raw, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	return s.applySnapshot(ctx, raw)
}

// HandleSnapshot applies a full payload received over the stream.
func (s *FeedService) HandleSnapshot(ctx context.Context, raw RawSnapshot) error {
	snap, err := s.applySnapshot(ctx, raw)
	if err != nil {
		return err
	}
	s.store.SetWithTTL(ctx, snapshotCacheKey, snap, s.cfg.CacheTTL)
	return nil
}

// HandleDelta applies a batch of per-match updates received over the stream.
func (s *FeedService) HandleDelta(ctx context.Context, updates []RawMatchUpdate, at time.Time) {
	snap, changed := s.rec.ApplyDelta(updates, at)
	if !changed {
		return
	}
	s.recordLedger(snap)
	s.store.SetWithTTL(ctx, snapshotCacheKey, snap, s.cfg.CacheTTL)
	s.broadcast(ctx, snap)
}

// HandleEvent applies one timeline event received over the stream.
func (s *FeedService) HandleEvent(ctx context.Context, raw RawEvent, at time.Time) {
	snap, changed := s.rec.ApplyEvent(raw, at)
	if !changed {
		return
	}
	s.recordLedger(snap)
	s.store.SetWithTTL(ctx, snapshotCacheKey, snap, s.cfg.CacheTTL)
	s.broadcast(ctx, snap)
}

func (s *FeedService) applySnapshot(ctx context.Context, raw RawSnapshot) (Snapshot, error) {
	if err := s.checkRegression(raw); err != nil {
		s.logger.WarnContext(ctx, "rejected upstream payload", "error", err)
		return Snapshot{}, err
	}

	snap := s.rec.ApplySnapshot(raw)
	s.recordLedger(snap)
	s.broadcast(ctx, snap)
	return snap, nil
}

// checkRegression rejects payloads that know less than we already do: fewer
// timeline events for a match we track, or a cleared result. Upstream
// occasionally serves stale replicas after a failover; trusting them would
// rewind live matches for every consumer.
func (s *FeedService) checkRegression(raw RawSnapshot) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	records := make([]map[string]any, 0, len(raw.Current)+len(raw.Old))
	records = append(records, raw.Current...)
	records = append(records, raw.Old...)

	for _, record := range records {
		m, ok := Normalize(record)
		if !ok {
			continue
		}
		known, tracked := s.ledger[m.Key]
		if !tracked {
			continue
		}
		if len(m.Events) < known.events {
			return fmt.Errorf("%w: match %s has %d events, previously %d", ErrStaleData, m.Key, len(m.Events), known.events)
		}
		if m.Result == "" && known.result != "" {
			return fmt.Errorf("%w: match %s lost result %q", ErrStaleData, m.Key, known.result)
		}
	}
	return nil
}

func (s *FeedService) recordLedger(snap Snapshot) {
	now := time.Now()
	s.ledgerMu.Lock()
	for _, m := range snap.Current {
		s.ledger[m.Key] = matchLedger{events: len(m.Events), result: m.Result, seenAt: now}
	}
	for _, m := range snap.Old {
		s.ledger[m.Key] = matchLedger{events: len(m.Events), result: m.Result, seenAt: now}
	}
	s.ledgerMu.Unlock()
}

func (s *FeedService) broadcast(ctx context.Context, snap Snapshot) {
	if s.hub != nil {
		s.hub.Publish(snap)
	}
	s.archiveFinished(ctx, snap)
	if s.notifier != nil {
		if err := s.notifier.NotifyChanged(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "change notification failed", "error", err)
		}
	}
}

func (s *FeedService) archiveFinished(ctx context.Context, snap Snapshot) {
	if s.archiveRepo == nil {
		return
	}

	for _, m := range snap.Old {
		s.archivedMu.Lock()
		prev, seen := s.archived[m.Key]
		if seen && prev == len(m.Events) {
			s.archivedMu.Unlock()
			continue
		}
		s.archived[m.Key] = len(m.Events)
		s.archivedMu.Unlock()

		record := archive.Record{
			MatchKey:   m.Key,
			UpstreamID: m.UpstreamID,
			TeamType:   m.TeamType,
			Opponent:   m.Opponent,
			Home:       m.Home,
			KickoffAt:  m.KickoffAt,
			Series:     m.Series,
			Result:     m.Result,
			EventCount: len(m.Events),
			ArchivedAt: time.Now().UTC(),
		}
		if err := s.archiveRepo.Upsert(ctx, record); err != nil {
			s.logger.ErrorContext(ctx, "archive finished match", "matchKey", m.Key, "error", err)
		}
	}
}

// Snapshot returns the current reconciled view without touching upstream.
func (s *FeedService) Snapshot() Snapshot {
	return s.rec.Snapshot()
}

// QueryOptions selects a slice of the snapshot for one consumer request.
type QueryOptions struct {
	DataType string `validate:"omitempty,oneof=all current old live"`
	Limit    int    `validate:"omitempty,gte=1,lte=500"`
}

// Query answers a consumer read against the cached snapshot. The "live"
// data type includes halftime, which is still an in-play state.
func (s *FeedService) Query(ctx context.Context, opts QueryOptions) ([]match.Match, error) {
	ctx, span := startUsecaseSpan(ctx, "FeedService.Query")
	defer span.End()

	snap, err := s.Refresh(ctx, false)
	if err != nil {
		// Serve the last-good view when upstream is down; consumers prefer
		// slightly old data over an error page.
		if len(snap.Current) == 0 && len(snap.Old) == 0 {
			return nil, err
		}
		s.logger.WarnContext(ctx, "serving stale snapshot", "error", err)
	}

	return filterMatches(snap, opts.DataType, opts.Limit)
}

func filterMatches(snap Snapshot, dataType string, limit int) ([]match.Match, error) {
	var selected []match.Match
	switch strings.ToLower(dataType) {
	case "", "all":
		selected = append(selected, snap.Current...)
		selected = append(selected, snap.Old...)
	case "current":
		selected = append(selected, snap.Current...)
	case "old":
		selected = append(selected, snap.Old...)
	case "live":
		for _, m := range snap.Current {
			if m.Status == match.StatusLive || m.Status == match.StatusHalftime {
				selected = append(selected, m)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown data type %q", ErrInvalidInput, dataType)
	}

	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	return selected, nil
}

// Subscription delivers coalesced snapshot updates to one consumer.
type Subscription struct {
	updates     chan Snapshot
	unsubscribe func()
	closeOnce   sync.Once
}

// Updates is the subscriber's channel. It always carries the latest
// snapshot; intermediate states a slow reader missed are dropped.
func (sub *Subscription) Updates() <-chan Snapshot { return sub.updates }

func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.unsubscribe()
		close(sub.updates)
	})
}

// Subscribe registers a consumer for snapshot updates. The returned
// subscription must be closed when the consumer goes away.
func (s *FeedService) Subscribe() *Subscription {
	sub := &Subscription{updates: make(chan Snapshot, 1)}

	var mu sync.Mutex
	closed := false
	sub.unsubscribe = func() {}

	cancel := s.hub.Subscribe(func(value any) {
		snap, ok := value.(Snapshot)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		// Replace an unread snapshot instead of blocking the hub.
		select {
		case <-sub.updates:
		default:
		}
		sub.updates <- snap
	})
	sub.unsubscribe = func() {
		mu.Lock()
		closed = true
		mu.Unlock()
		cancel()
	}
	return sub
}

// SetStreamConnected flips the fallback poller. While the stream is down the
// run loop polls upstream on a fixed cadence so consumers keep getting data.
func (s *FeedService) SetStreamConnected(connected bool) {
	s.streamMu.Lock()
	s.streamConnected = connected
	s.streamMu.Unlock()
}

func (s *FeedService) streamUp() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.streamConnected
}

// Run drives background maintenance until the context is cancelled: retention
// cleanup of finished matches and fallback polling while the stream is down.
func (s *FeedService) Run(ctx context.Context) {
	var wg conc.WaitGroup
	defer wg.Wait()

	wg.Go(func() { s.cleanupLoop(ctx) })
	wg.Go(func() { NewFallbackPoller(s, s.cfg.FallbackEvery).Run(ctx) })
}

func (s *FeedService) cleanupLoop(ctx context.Context) {
	retention := time.NewTicker(s.cfg.CleanupEvery)
	defer retention.Stop()
	sweep := time.NewTicker(s.cfg.SweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			// Stale ledger rows and cache entries only needed to live for a
			// few refresh cycles; they age out much faster than matches.
			cutoff := time.Now().Add(-s.cfg.LedgerTTL)
			s.store.SweepOlderThan(cutoff)
			s.pruneLedger(cutoff)
		case <-retention.C:
			cutoff := time.Now().Add(-s.cfg.Retention)
			dropped := s.rec.DropOldBefore(cutoff)
			if s.archiveRepo != nil {
				if _, err := s.archiveRepo.DeleteOlderThan(ctx, cutoff); err != nil {
					s.logger.ErrorContext(ctx, "archive cleanup", "error", err)
				}
			}
			if dropped > 0 {
				s.logger.InfoContext(ctx, "retention cleanup", "droppedMatches", dropped)
			}
		}
	}
}

func (s *FeedService) pruneLedger(cutoff time.Time) {
	s.ledgerMu.Lock()
	for key, entry := range s.ledger {
		if entry.seenAt.Before(cutoff) {
			delete(s.ledger, key)
		}
	}
	s.ledgerMu.Unlock()

	s.archivedMu.Lock()
	// The archived marker set only exists to dedupe upserts; resetting it on
	// cleanup is harmless because upserts are idempotent.
	if len(s.archived) > 10000 {
		s.archived = make(map[string]int)
	}
	s.archivedMu.Unlock()
}
