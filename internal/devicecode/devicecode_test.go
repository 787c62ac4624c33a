package devicecode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetClearRoundTrip(t *testing.T) {
	var code Atomic

	c, changed := code.Set(BitPowerSwitch)
	assert.True(t, changed)
	assert.Equal(t, Code(0b10), c)

	c, changed = code.Set(BitPowerSwitch)
	assert.False(t, changed)
	assert.Equal(t, Code(0b10), c)

	c, changed = code.Clear(BitChassis)
	assert.False(t, changed)
	assert.Equal(t, Code(0b10), c)

	c, changed = code.Clear(BitPowerSwitch)
	assert.True(t, changed)
	assert.Equal(t, Code(0), c)
}

func TestHas(t *testing.T) {
	var code Atomic
	code.Set(BitRTKLink, BitRTKAdequate)

	got := code.Load()
	assert.True(t, got.Has(BitRTKLink))
	assert.True(t, got.Has(BitRTKAdequate))
	assert.False(t, got.Has(BitRTKConverged))
}

func TestConcurrentSetClearNeverCorrupts(t *testing.T) {
	var code Atomic
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			code.Set(BitChassis)
		}()
		go func() {
			defer wg.Done()
			code.Clear(BitChassis)
		}()
	}
	wg.Wait()

	got := code.Load()
	assert.True(t, got == 0 || got == 1, "bitmap corrupted: %b", got)
}
