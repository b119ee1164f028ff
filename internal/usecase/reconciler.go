package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klubbweb/matchcenter/internal/domain/match"
)

// Raw payload shapes as received from the transport layer, before
// normalization. Field maps stay untyped so the normalizer owns all shape
// decisions.
type RawSnapshot struct {
	Current     []map[string]any
	Old         []map[string]any
	LastUpdated time.Time
}

const (
	UpdateKindUpsert = "upsert"
	UpdateKindDelete = "delete"
)

type RawMatchUpdate struct {
	Kind    string
	MatchID string
	Fields  map[string]any
}

type RawEvent struct {
	MatchID string
	Fields  map[string]any
}

// Snapshot is the reconciled, consumer-facing view. Current holds upcoming
// and in-play matches sorted by kickoff ascending; Old holds finished matches
// sorted descending.
type Snapshot struct {
	Current     []match.Match `json:"current"`
	Old         []match.Match `json:"old"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

type matchState struct {
	raw  map[string]any
	m    match.Match
	seen map[string]struct{}
}

// Reconciler folds snapshots, deltas, and single events into one consistent
// match set. All methods are safe for concurrent use.
type Reconciler struct {
	mu            sync.Mutex
	byKey         map[string]*matchState
	keyByUpstream map[string]string
	lastUpdated   time.Time
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		byKey:         make(map[string]*matchState),
		keyByUpstream: make(map[string]string),
	}
}

// ApplySnapshot replaces the full match set with the given payload. Records
// that fail normalization are skipped without failing the batch.
func (r *Reconciler) ApplySnapshot(raw RawSnapshot) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byKey = make(map[string]*matchState, len(raw.Current)+len(raw.Old))
	r.keyByUpstream = make(map[string]string, len(r.byKey))
	for _, record := range raw.Current {
		r.upsertLocked(record)
	}
	for _, record := range raw.Old {
		r.upsertLocked(record)
	}

	if !raw.LastUpdated.IsZero() {
		r.lastUpdated = raw.LastUpdated
	} else {
		r.lastUpdated = time.Now().UTC()
	}
	return r.snapshotLocked()
}

// ApplyDelta applies a batch of per-match updates. The returned flag reports
// whether any update actually changed state; updates naming unknown matches
// are no-ops.
func (r *Reconciler) ApplyDelta(updates []RawMatchUpdate, at time.Time) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, update := range updates {
		switch update.Kind {
		case UpdateKindDelete:
			if r.deleteLocked(update.MatchID) {
				changed = true
			}
		default:
			if r.mergeLocked(update.MatchID, update.Fields) {
				changed = true
			}
		}
	}

	if changed {
		r.touchLocked(at)
	}
	return r.snapshotLocked(), changed
}

// ApplyEvent appends one timeline event to its match. Events for unknown
// matches and already-seen events are dropped.
func (r *Reconciler) ApplyEvent(raw RawEvent, at time.Time) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keyByUpstream[raw.MatchID]
	if !ok {
		return r.snapshotLocked(), false
	}
	state := r.byKey[key]

	event, ok := ParseRawEvent(raw.Fields)
	if !ok {
		return r.snapshotLocked(), false
	}

	fp := match.Fingerprint(event)
	if _, dup := state.seen[fp]; dup {
		return r.snapshotLocked(), false
	}
	state.seen[fp] = struct{}{}

	state.m.Events = match.MergeEvents(state.m.Events, []match.Event{event})
	state.m.Status = match.DeriveStatus(firstString(state.raw, rawStatusKeys...), state.m.Events)
	if event.HomeScore != nil && event.AwayScore != nil {
		result := fmt.Sprintf("%d-%d", *event.HomeScore, *event.AwayScore)
		state.m.Result = result
		// Mirror into the raw record so later field merges keep the score.
		state.raw["result"] = result
	}
	r.touchLocked(at)
	return r.snapshotLocked(), true
}

// Snapshot returns the current reconciled view without applying anything.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// DropOldBefore removes finished matches whose kickoff predates the cutoff
// and reports how many were dropped.
func (r *Reconciler) DropOldBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key, state := range r.byKey {
		if state.m.Finished() && state.m.KickoffAt.Before(cutoff) {
			delete(r.byKey, key)
			if state.m.UpstreamID != "" {
				delete(r.keyByUpstream, state.m.UpstreamID)
			}
			dropped++
		}
	}
	return dropped
}

func (r *Reconciler) upsertLocked(record map[string]any) {
	m, ok := Normalize(record)
	if !ok {
		return
	}

	state := &matchState{raw: record, m: m, seen: make(map[string]struct{}, len(m.Events))}
	for _, event := range m.Events {
		state.seen[match.Fingerprint(event)] = struct{}{}
	}

	r.byKey[m.Key] = state
	if m.UpstreamID != "" {
		r.keyByUpstream[m.UpstreamID] = m.Key
	}
}

func (r *Reconciler) mergeLocked(matchID string, fields map[string]any) bool {
	key, known := r.keyByUpstream[matchID]
	if known {
		// Merge onto the preserved raw record so fields absent from the
		// delta keep their previous values.
		state := r.byKey[key]
		merged := make(map[string]any, len(state.raw)+len(fields))
		for k, v := range state.raw {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		m, ok := Normalize(merged)
		if !ok {
			return false
		}
		m.Events = match.MergeEvents(state.m.Events, m.Events)
		m.Status = match.DeriveStatus(firstString(merged, rawStatusKeys...), m.Events)

		if m.Key != key {
			delete(r.byKey, key)
		}
		state.raw = merged
		state.m = m
		for _, event := range m.Events {
			state.seen[match.Fingerprint(event)] = struct{}{}
		}
		r.byKey[m.Key] = state
		r.keyByUpstream[matchID] = m.Key
		return true
	}

	// A full upsert may introduce a match we have not seen yet. Copy the
	// record before annotating it; the caller's map is not ours to mutate.
	if _, ok := Normalize(fields); !ok {
		return false
	}
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	if firstString(record, rawIDKeys...) == "" && matchID != "" {
		record["id"] = matchID
	}
	r.upsertLocked(record)
	return true
}

func (r *Reconciler) deleteLocked(matchID string) bool {
	key, ok := r.keyByUpstream[matchID]
	if !ok {
		return false
	}
	delete(r.byKey, key)
	delete(r.keyByUpstream, matchID)
	return true
}

func (r *Reconciler) touchLocked(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	r.lastUpdated = at.UTC()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snap := Snapshot{LastUpdated: r.lastUpdated}
	for _, state := range r.byKey {
		if state.m.Finished() {
			snap.Old = append(snap.Old, state.m)
		} else {
			snap.Current = append(snap.Current, state.m)
		}
	}
	sort.Slice(snap.Current, func(i, j int) bool {
		return snap.Current[i].KickoffAt.Before(snap.Current[j].KickoffAt)
	})
	sort.Slice(snap.Old, func(i, j int) bool {
		return snap.Old[i].KickoffAt.After(snap.Old[j].KickoffAt)
	})
	return snap
}
