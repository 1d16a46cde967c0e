package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCaseLocks_SerializeSameCase(t *testing.T) {
	locks := newCaseLocks()
	id := uuid.New()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(id)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Zero(t, locks.size())
}

func TestCaseLocks_DifferentCasesDoNotBlock(t *testing.T) {
	locks := newCaseLocks()
	unlockA := locks.lock(uuid.New())
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock(uuid.New())
		unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on another case blocked")
	}
	assert.Equal(t, 1, locks.size())
}
