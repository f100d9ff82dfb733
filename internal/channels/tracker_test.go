// ABOUTME: Tests for the channel Tracker allocation and reuse behavior.
// ABOUTME: Covers range exhaustion, FIFO reuse, and concurrent uniqueness.

package channels

import (
	"errors"
	"sync"
	"testing"
)

func TestTracker_AllocateSequence(t *testing.T) {
	tr := NewTracker(100, 102)

	for _, want := range []Channel{100, 101, 102} {
		got, err := tr.Allocate()
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}

	if _, err := tr.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Errorf("Allocate() on exhausted range error = %v, want ErrExhausted", err)
	}
}

func TestTracker_FIFOReuse(t *testing.T) {
	tr := NewTracker(100, 102)
	for i := 0; i < 3; i++ {
		if _, err := tr.Allocate(); err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
	}

	tr.Release(101)
	got, err := tr.Allocate()
	if err != nil {
		t.Fatalf("Allocate() after release error = %v", err)
	}
	if got != 101 {
		t.Errorf("Allocate() after release = %d, want 101", got)
	}

	// Oldest released channel comes back first.
	tr.Release(102)
	tr.Release(100)
	first, _ := tr.Allocate()
	second, _ := tr.Allocate()
	if first != 102 || second != 100 {
		t.Errorf("reuse order = %d, %d, want 102, 100", first, second)
	}
}

func TestTracker_SingleChannelRange(t *testing.T) {
	tr := NewTracker(1000, 1000)

	ch, err := tr.Allocate()
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if ch != 1000 {
		t.Errorf("Allocate() = %d, want 1000", ch)
	}
	if _, err := tr.Allocate(); !errors.Is(err, ErrExhausted) {
		t.Errorf("second Allocate() error = %v, want ErrExhausted", err)
	}

	tr.Release(ch)
	again, err := tr.Allocate()
	if err != nil {
		t.Fatalf("Allocate() after release error = %v", err)
	}
	if again != 1000 {
		t.Errorf("Allocate() after release = %d, want 1000", again)
	}
}

func TestTracker_ConcurrentUniqueness(t *testing.T) {
	const (
		min     = 1000
		max     = 1999
		workers = 8
		perWork = 125 // workers * perWork == range size
	)

	tr := NewTracker(min, max)
	results := make(chan Channel, workers*perWork)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				ch, err := tr.Allocate()
				if err != nil {
					t.Errorf("Allocate() error = %v", err)
					return
				}
				results <- ch
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[Channel]bool)
	for ch := range results {
		if seen[ch] {
			t.Fatalf("channel %d issued twice", ch)
		}
		if ch < min || ch > max {
			t.Fatalf("channel %d outside range [%d, %d]", ch, min, max)
		}
		seen[ch] = true
	}
	if len(seen) != workers*perWork {
		t.Errorf("allocated %d unique channels, want %d", len(seen), workers*perWork)
	}
}

func TestReserved(t *testing.T) {
	tests := []struct {
		ch   Channel
		want bool
	}{
		{InvalidChannel, false},
		{ReservedMin, true},
		{ControlChannel, true},
		{ReservedMax, true},
		{ReservedMax + 1, false},
	}
	for _, tt := range tests {
		if got := Reserved(tt.ch); got != tt.want {
			t.Errorf("Reserved(%d) = %v, want %v", tt.ch, got, tt.want)
		}
	}
}
