package probe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolCheckoutDoesNotBlockAtCapacity(t *testing.T) {
	p := NewPoolWithCapacity(func() int { return 0 }, 2, 2)
	assert.Equal(t, 2, p.Size())

	h1 := p.Checkout()
	h2 := p.Checkout()
	// both slots exhausted; next checkout must grow, not block
	h3 := p.Checkout()

	assert.Equal(t, 4, p.Size())

	h1.Release()
	h2.Release()
	h3.Release()
}

func TestPoolGrowthIsMonotonic(t *testing.T) {
	p := NewPoolWithCapacity(func() int { return 0 }, 1, 1)
	assert.Equal(t, 1, p.Size())

	h := p.Checkout()
	_ = p.Checkout() // forces growth to 2
	assert.Equal(t, 2, p.Size())

	h.Release()
	// returning entries never shrinks the pool
	assert.Equal(t, 2, p.Size())
}

func TestPoolConcurrentCheckoutNeverPanics(t *testing.T) {
	p := NewPoolWithCapacity(func() int { return 0 }, 4, 4)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := p.Checkout()
			h.Release()
		}()
	}
	wg.Wait()
}

func TestHandleValueReturnsConstructedEntry(t *testing.T) {
	p := NewPoolWithCapacity(func() string { return "client" }, 1, 1)
	h := p.Checkout()
	defer h.Release()
	assert.Equal(t, "client", h.Value())
}
