package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/klubbweb/matchcenter/internal/domain/match"
)

// WatchOptions shapes one consumer's view of the feed. DataType accepts the
// same values as QueryOptions; RefreshEvery of zero disables the cadence so
// the watcher only follows hub pushes.
type WatchOptions struct {
	DataType     string
	Limit        int
	RefreshEvery time.Duration
	Enabled      bool
}

// ConsumerView is the triple a page consumer renders from. Loading is true
// only until the first successful payload; later errors keep the last good
// matches and surface through Err.
type ConsumerView struct {
	Matches   []match.Match
	Loading   bool
	Err       error
	Connected bool
}

// Watcher is one consumer's filtered live view of the feed: it follows hub
// pushes and optionally re-polls on its own cadence. Closing a watcher stops
// its timer and detaches it from the hub without touching the shared service.
type Watcher struct {
	svc  *FeedService
	opts WatchOptions

	mu      sync.Mutex
	matches []match.Match
	loaded  bool
	lastErr error

	sub       *Subscription
	stop      context.CancelFunc
	closeOnce sync.Once
}

// Watch registers a filtered consumer. A disabled watcher is inert: it holds
// an empty, non-loading view and owns no background work.
func (s *FeedService) Watch(opts WatchOptions) *Watcher {
	w := &Watcher{svc: s, opts: opts}
	if !opts.Enabled {
		w.loaded = true
		w.stop = func() {}
		return w
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.stop = cancel
	w.sub = s.Subscribe()

	go w.run(ctx)
	return w
}

func (w *Watcher) run(ctx context.Context) {
	w.refresh(ctx)

	var cadence <-chan time.Time
	if w.opts.RefreshEvery > 0 {
		ticker := time.NewTicker(w.opts.RefreshEvery)
		defer ticker.Stop()
		cadence = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-w.sub.Updates():
			if !ok {
				return
			}
			w.apply(snap, nil)
		case <-cadence:
			w.refresh(ctx)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	snap, err := w.svc.Refresh(ctx, false)
	w.apply(snap, err)
}

func (w *Watcher) apply(snap Snapshot, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.lastErr = err
		// Refresh hands back the last-good snapshot alongside the error;
		// keep rendering it. With nothing to render the view stays loading.
		if !w.loaded && len(snap.Current)+len(snap.Old) == 0 {
			return
		}
	} else {
		w.lastErr = nil
	}

	matches, ferr := filterMatches(snap, w.opts.DataType, w.opts.Limit)
	if ferr != nil {
		w.lastErr = ferr
		return
	}
	w.matches = matches
	w.loaded = true
}

// View returns the consumer triple. Connected reflects the shared stream
// state at call time.
func (w *Watcher) View() ConsumerView {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]match.Match, len(w.matches))
	copy(out, w.matches)
	return ConsumerView{
		Matches:   out,
		Loading:   !w.loaded,
		Err:       w.lastErr,
		Connected: w.svc.streamUp(),
	}
}

// Close is idempotent.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.stop()
		if w.sub != nil {
			w.sub.Close()
		}
	})
}
