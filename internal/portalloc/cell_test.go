package portalloc

import (
	"errors"
	"sync"
	"testing"
)

func TestCell_ZeroBeforeSet(t *testing.T) {
	var c Cell
	if got := c.Get(); got != 0 {
		t.Errorf("expected 0 before allocation, got %d", got)
	}
}

func TestCell_SetOnce(t *testing.T) {
	var c Cell

	if err := c.Set(40001); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := c.Get(); got != 40001 {
		t.Errorf("expected 40001, got %d", got)
	}

	err := c.Set(40002)
	if !errors.Is(err, ErrAlreadySet) {
		t.Errorf("expected ErrAlreadySet, got %v", err)
	}
	if got := c.Get(); got != 40001 {
		t.Errorf("expected value to stay 40001, got %d", got)
	}
}

func TestCell_RejectsInvalidPort(t *testing.T) {
	var c Cell
	for _, port := range []int{0, -1, 65536} {
		if err := c.Set(port); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("Set(%d): expected ErrInvalidRange, got %v", port, err)
		}
	}
	if c.Get() != 0 {
		t.Error("expected cell to remain unset")
	}
}

func TestCell_ConcurrentSet(t *testing.T) {
	var c Cell
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			if c.Set(port) == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
			_ = c.Get()
		}(40000 + i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one successful Set, got %d", winners)
	}
	if got := c.Get(); got < 40000 || got >= 40050 {
		t.Errorf("unexpected port %d", got)
	}
}
