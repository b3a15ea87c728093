package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLocksExcludeSameRoom(t *testing.T) {
	l := NewRoomLocks()
	unlock := l.Lock("r1")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("r1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder got r1 while it was locked")
	case <-time.After(50 * time.Millisecond):
	}

	other := l.Lock("r2")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired r1")
	}
}

func TestRoomLocksReleaseEntries(t *testing.T) {
	l := NewRoomLocks()
	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("r1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	require.Zero(t, l.Len())

	unlock := l.Lock("r1")
	unlock()
	unlock()
	assert.Zero(t, l.Len())
}
