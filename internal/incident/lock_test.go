package incident

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("incident-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestKeyedMutex_DropsIdleEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.lock("incident-1")
	km.mu.Lock()
	require.Len(t, km.entries, 1)
	km.mu.Unlock()

	unlock()

	km.mu.Lock()
	require.Empty(t, km.entries)
	km.mu.Unlock()
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.lock("incident-a")
	defer unlockA()

	// A different key must not block
	done := make(chan struct{})
	go func() {
		unlockB := km.lock("incident-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
