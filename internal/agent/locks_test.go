package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSessionLocks_SerializesSameSession(t *testing.T) {
	locks := newSessionLocks()
	id := uuid.New()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.acquire(id)
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
}

func TestSessionLocks_IndependentSessions(t *testing.T) {
	locks := newSessionLocks()

	releaseA := locks.acquire(uuid.New())
	defer releaseA()

	// A second session must not block behind the first.
	done := make(chan struct{})
	go func() {
		releaseB := locks.acquire(uuid.New())
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent session blocked behind unrelated lock")
	}
}

func TestSessionLocks_CleansUpEntries(t *testing.T) {
	locks := newSessionLocks()
	id := uuid.New()

	release := locks.acquire(id)
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.locks) != 0 {
		t.Errorf("lock map size = %d after release, want 0", len(locks.locks))
	}
}
