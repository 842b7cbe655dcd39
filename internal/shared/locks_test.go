package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 8
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := km.Lock("p-1")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*iterations, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("p-1")
	// A different key must not block even while p-1 is held.
	unlockB := km.Lock("p-2")
	unlockB()
	unlockA()
}

func TestKeyedMutexCleansUpIdleEntries(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("p-1")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.entries)
}

func TestKeyedMutexReacquireAfterUnlock(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("p-1")
	unlock()
	unlock = km.Lock("p-1")
	unlock()
}
