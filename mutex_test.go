package parklock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMutexUncontended(t *testing.T) {
	var m Mutex
	const n = 1000
	for range n {
		if !m.TryLock() {
			t.Fatal("TryLock failed on an unlocked mutex")
		}
		if !m.IsLocked() {
			t.Fatal("IsLocked false while held")
		}
		m.Unlock()
	}
}

func TestMutexLockUnlockLoop(t *testing.T) {
	var m Mutex
	const n = 1_000_000
	for range n {
		m.Lock()
		m.Unlock()
	}
}

func TestMutexTryLockFailsWhileHeld(t *testing.T) {
	var m Mutex
	m.Lock()
	if m.TryLock() {
		t.Fatal("TryLock succeeded while already held")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("TryLock failed after Unlock")
	}
	m.Unlock()
}

func TestMutexUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Unlock of an unlocked Mutex did not panic")
		}
	}()
	var m Mutex
	m.Unlock()
}

func TestMutexPingPong(t *testing.T) {
	var m Mutex
	m.Lock()

	t2Acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(t2Acquired)
		m.Unlock()
	}()

	select {
	case <-t2Acquired:
		t.Fatal("second goroutine acquired before first released")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case <-t2Acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired after release")
	}
}

func TestMutexMutualExclusion(t *testing.T) {
	var m Mutex
	var inside atomic.Int32
	var counter int64
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			if inside.Add(1) != 1 {
				t.Error("more than one goroutine inside the critical section")
			}
			counter++
			inside.Add(-1)
			m.Unlock()
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestMutexNoLostWakeup(t *testing.T) {
	var m Mutex
	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	var done atomic.Int32
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			defer m.Unlock()
			done.Add(1)
		}()
	}

	select {
	case <-waitFor(&wg):
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d/%d goroutines finished; suspect a lost wakeup", done.Load(), n)
	}
}

func waitFor(wg *sync.WaitGroup) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	return ch
}
