package pubsub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_CoalescesBurstIntoOneNotification(t *testing.T) {
	t.Parallel()

	hub, err := NewHub(30*time.Millisecond, 4)
	require.NoError(t, err)
	defer hub.Close()

	var deliveries atomic.Int32
	var mu sync.Mutex
	var lastSeen any

	unsubscribe := hub.Subscribe(func(v any) {
		deliveries.Add(1)
		mu.Lock()
		lastSeen = v
		mu.Unlock()
	})
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		hub.Publish(i)
	}

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), deliveries.Load())
	mu.Lock()
	assert.Equal(t, 9, lastSeen)
	mu.Unlock()
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	hub, err := NewHub(0, 2)
	require.NoError(t, err)
	defer hub.Close()

	var first, second atomic.Int32
	unsubFirst := hub.Subscribe(func(any) { first.Add(1) })
	hub.Subscribe(func(any) { second.Add(1) })

	hub.Publish("a")
	time.Sleep(50 * time.Millisecond)

	unsubFirst()
	unsubFirst() // idempotent

	hub.Publish("b")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(2), second.Load())
	assert.Equal(t, 1, hub.SubscriberCount())
}

func TestHub_PublishAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	hub, err := NewHub(0, 2)
	require.NoError(t, err)

	var deliveries atomic.Int32
	hub.Subscribe(func(any) { deliveries.Add(1) })
	hub.Close()
	hub.Publish("late")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), deliveries.Load())
}
