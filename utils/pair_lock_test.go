package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairLockIsUnordered(t *testing.T) {
	l := NewPairLock()
	unlock := l.Lock("a", "b")

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		l.Lock("b", "a")()
	}()

	select {
	case <-acquired:
		t.Fatal("reverse pair acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reverse pair never acquired")
	}
	assert.Equal(t, 0, l.Len())
}

func TestPairLockIndependentPairs(t *testing.T) {
	l := NewPairLock()
	unlockAB := l.Lock("a", "b")
	unlockAC := l.Lock("a", "c")
	assert.Equal(t, 2, l.Len())
	unlockAC()
	unlockAB()
	assert.Equal(t, 0, l.Len())
}

func TestPairLockSerializes(t *testing.T) {
	l := NewPairLock()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := "x", "y"
			if i%2 == 0 {
				a, b = b, a
			}
			defer l.Lock(a, b)()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.Len())
}
