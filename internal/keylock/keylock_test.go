package keylock

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestSameKeySerializes(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("fundable:p1")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if l.Len() != 0 {
		t.Fatalf("expected idle entries to be dropped, have %d", l.Len())
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)
	l := New()
	unlockA := l.Lock("fundable:a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("fundable:b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock on another key blocked")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := New()
	unlock := l.Lock("k")
	unlock()
	unlock()
	again := l.Lock("k")
	again()
}
