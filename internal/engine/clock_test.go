package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Next(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)
	assert.Equal(t, int64(101), c.Next())
}

func TestClock_Observe(t *testing.T) {
	c := NewClockAt(10)

	c.Observe(5)
	assert.Equal(t, int64(10), c.Current(), "observe never moves backwards")

	c.Observe(42)
	assert.Equal(t, int64(43), c.Next())
}

func TestClock_ConcurrentNextUnique(t *testing.T) {
	c := NewClock()
	const goroutines, perG = 8, 200

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perG)
	assert.Equal(t, int64(goroutines*perG), c.Current())
}
