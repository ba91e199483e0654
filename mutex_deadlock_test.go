package parklock

import (
	"testing"
	"time"
)

func TestDeadlockMutexUncontended(t *testing.T) {
	m := NewDeadlockMutex()
	if !m.TryLock() {
		t.Fatal("TryLock failed on an unlocked mutex")
	}
	if !m.IsLocked() {
		t.Fatal("IsLocked false while held")
	}
	m.Unlock()
	if m.IsLocked() {
		t.Fatal("IsLocked true after Unlock")
	}
}

func TestDeadlockMutexLockUnlock(t *testing.T) {
	m := NewDeadlockMutex()
	for range 10_000 {
		if err := m.Lock(); err != nil {
			t.Fatalf("Lock: %v", err)
		}
		m.Unlock()
	}
}

func TestDeadlockMutexUnlockOfUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Unlock of an unlocked DeadlockMutex did not panic")
		}
	}()
	m := NewDeadlockMutex()
	m.Unlock()
}

func TestDeadlockMutexPingPong(t *testing.T) {
	m := NewDeadlockMutex()
	if err := m.Lock(); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.Lock()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired before first released")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		m.Unlock()
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired after release")
	}
}

// TestDeadlockMutexSimpleCycle mirrors spec.md §8 scenario 4: T1 holds A
// and requests B; T2 holds B and requests A. Exactly one Lock call must
// return ErrDeadlock; the other must then succeed.
func TestDeadlockMutexSimpleCycle(t *testing.T) {
	a := NewDeadlockMutex()
	b := NewDeadlockMutex()

	results := make(chan error, 2)
	t1Holds := make(chan struct{})
	t2Holds := make(chan struct{})

	go func() { // locks A itself, then wants B
		if err := a.Lock(); err != nil {
			t.Error(err)
			return
		}
		close(t1Holds)
		<-t2Holds
		err := b.Lock()
		results <- err
		if err == nil {
			b.Unlock()
		}
		a.Unlock()
	}()

	go func() { // locks B itself, then wants A
		<-t1Holds
		if err := b.Lock(); err != nil {
			t.Error(err)
			return
		}
		close(t2Holds)
		err := a.Lock()
		results <- err
		if err == nil {
			a.Unlock()
		}
		b.Unlock()
	}()

	var errs []error
	for range 2 {
		select {
		case err := <-results:
			errs = append(errs, err)
		case <-time.After(5 * time.Second):
			t.Fatal("neither goroutine resolved within the detector's timeout window")
		}
	}

	deadlocks := 0
	for _, err := range errs {
		if err == ErrDeadlock {
			deadlocks++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if deadlocks != 1 {
		t.Fatalf("got %d DEADLOCKED results, want exactly 1 (errs=%v)", deadlocks, errs)
	}
}

// TestDeadlockMutexNoFalsePositive mirrors spec.md §8 scenario 6: no
// cycle exists, so no Lock call should ever return ErrDeadlock.
func TestDeadlockMutexNoFalsePositive(t *testing.T) {
	a := NewDeadlockMutex()
	b := NewDeadlockMutex()

	if err := a.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := b.Lock(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		err := a.Lock() // the test goroutine holds A and B; this one wants A only, so no cycle
		done <- err
		if err == nil {
			a.Unlock()
		}
	}()

	time.Sleep(50 * time.Millisecond)
	a.Unlock()
	b.Unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Lock returned %v, want nil (no cycle exists)", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("goroutine never acquired A after it was released")
	}
}
