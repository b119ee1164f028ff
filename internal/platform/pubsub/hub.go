package pubsub

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// Hub is a process-local broadcast channel. Publishing replaces the pending
// value; delivery to subscribers is batched to at most once per notify
// interval, so a burst of updates produces a single notification carrying the
// latest state. Callbacks run on a bounded worker pool.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int]func(any)
	nextID      int

	notifyEvery time.Duration
	pending     any
	scheduled   bool

	pool   *ants.Pool
	closed bool
}

func NewHub(notifyEvery time.Duration, workerCount int) (*Hub, error) {
	if workerCount < 1 {
		workerCount = 8
	}
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, err
	}

	return &Hub{
		subscribers: make(map[int]func(any)),
		notifyEvery: notifyEvery,
		pool:        pool,
	}, nil
}

// Subscribe registers a callback and returns its unsubscribe function.
// Unsubscribing never affects other subscribers.
func (h *Hub) Subscribe(fn func(any)) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Publish stores value as the pending state and schedules a flush. Values
// published while a flush is pending are coalesced; only the latest survives.
func (h *Hub) Publish(value any) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.pending = value
	if h.scheduled {
		h.mu.Unlock()
		return
	}
	h.scheduled = true
	h.mu.Unlock()

	if h.notifyEvery <= 0 {
		h.flush()
		return
	}
	time.AfterFunc(h.notifyEvery, h.flush)
}

func (h *Hub) flush() {
	h.mu.Lock()
	value := h.pending
	h.pending = nil
	h.scheduled = false
	callbacks := make([]func(any), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		callbacks = append(callbacks, fn)
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn := fn
		if err := h.pool.Submit(func() { fn(value) }); err != nil {
			// Pool exhausted or released; deliver inline rather than drop.
			fn(value)
		}
	}
}

// SubscriberCount reports how many callbacks are currently registered.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.subscribers = make(map[int]func(any))
	h.mu.Unlock()
	h.pool.Release()
}
