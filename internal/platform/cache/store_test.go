package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_GetOrLoad_CoalescesConcurrentLoads(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := store.GetOrLoad(context.Background(), "same-key", loader)
			if err != nil {
				errCh <- err
				return
			}
			if got, _ := v.(string); got != "value" {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_ServesCachedValue(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return "cached", nil
	}

	if _, err := store.GetOrLoad(context.Background(), "k", loader); err != nil {
		t.Fatalf("first GetOrLoad error: %v", err)
	}
	if _, err := store.GetOrLoad(context.Background(), "k", loader); err != nil {
		t.Fatalf("second GetOrLoad error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_SetWithTTL_Expires(t *testing.T) {
	t.Parallel()

	store := NewStore(time.Minute)
	store.SetWithTTL(context.Background(), "short", "v", 10*time.Millisecond)

	if _, ok := store.Get(context.Background(), "short"); !ok {
		t.Fatal("entry should be fresh immediately after set")
	}

	time.Sleep(25 * time.Millisecond)
	if _, ok := store.Get(context.Background(), "short"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestStore_SweepOlderThan(t *testing.T) {
	t.Parallel()

	store := NewStore(0)
	store.Set(context.Background(), "a", 1)
	store.Set(context.Background(), "b", 2)

	if removed := store.SweepOlderThan(time.Now().Add(-time.Minute)); removed != 0 {
		t.Fatalf("removed %d entries, want 0", removed)
	}
	if removed := store.SweepOlderThan(time.Now().Add(time.Minute)); removed != 2 {
		t.Fatalf("removed %d entries, want 2", removed)
	}
	if _, ok := store.Get(context.Background(), "a"); ok {
		t.Fatal("entry survived sweep")
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")
