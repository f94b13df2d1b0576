package shutdown

import (
	"sync"
	"testing"
	"time"
)

func TestCoordinator_InitiallyClear(t *testing.T) {
	c := New()
	if c.IsShutdownRequested() {
		t.Error("expected shutdown flag to start false")
	}
	select {
	case <-c.Done():
		t.Error("expected Done to be open before shutdown is requested")
	default:
	}
}

func TestCoordinator_RequestShutdown(t *testing.T) {
	c := New()

	if !c.RequestShutdown() {
		t.Error("expected first RequestShutdown to report true")
	}
	if !c.IsShutdownRequested() {
		t.Error("expected flag to be set")
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done to be closed")
	}
}

func TestCoordinator_Idempotent(t *testing.T) {
	once := New()
	once.RequestShutdown()

	twice := New()
	twice.RequestShutdown()
	if twice.RequestShutdown() {
		t.Error("expected second RequestShutdown to report false")
	}

	if once.IsShutdownRequested() != twice.IsShutdownRequested() {
		t.Error("expected calling twice to match calling once")
	}
	// Done must not panic on a double close and must stay closed
	select {
	case <-twice.Done():
	default:
		t.Error("expected Done to stay closed")
	}
}

func TestCoordinator_ConcurrentRequests(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if c.RequestShutdown() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			_ = c.IsShutdownRequested()
		}()
	}
	wg.Wait()

	if firsts != 1 {
		t.Errorf("expected exactly one first request, got %d", firsts)
	}
	if !c.IsShutdownRequested() {
		t.Error("expected flag to be set")
	}
}
