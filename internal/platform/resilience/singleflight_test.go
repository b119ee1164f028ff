package resilience

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_CollapsesConcurrentCalls(t *testing.T) {
	var g SingleFlight
	var executions int32

	const workers = 24
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			val, err, _ := g.Do("feed-key", func() (any, error) {
				atomic.AddInt32(&executions, 1)
				time.Sleep(20 * time.Millisecond)
				return "payload", nil
			})
			if err != nil {
				t.Errorf("singleflight call failed: %v", err)
			}
			if got, _ := val.(string); got != "payload" {
				t.Errorf("unexpected value %v", val)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Fatalf("expected function to run once, got %d", got)
	}
}

func TestSingleFlight_SequentialCallsRunSeparately(t *testing.T) {
	var g SingleFlight
	var executions int32

	for i := 0; i < 3; i++ {
		_, _, shared := g.Do("key", func() (any, error) {
			atomic.AddInt32(&executions, 1)
			return nil, nil
		})
		if shared {
			t.Fatalf("call %d unexpectedly shared", i)
		}
	}

	if got := atomic.LoadInt32(&executions); got != 3 {
		t.Fatalf("expected 3 executions, got %d", got)
	}
}
