package mind

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_RejectsSecondHolder(t *testing.T) {
	g := NewGuard()
	release, err := g.TryAcquire("chat")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.TryAcquire("chat"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire err = %v, want ErrBusy", err)
	}
	if _, err := g.TryAcquire("other"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}
	release()
	release()
	if g.Held("chat") {
		t.Fatal("still held after release")
	}
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.TryAcquire("chat"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
}
