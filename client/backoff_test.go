package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 400*time.Millisecond)

	prevBase := time.Duration(0)
	for _, wantBase := range []time.Duration{100, 200, 400, 400, 400} {
		d := b.Next()
		base := wantBase * time.Millisecond
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/4, "jitter stays within a quarter of the window")
		prevBase = base
	}
	assert.Equal(t, 400*time.Millisecond, prevBase)
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	b.Next()
	b.Next()
	b.Reset()

	d := b.Next()
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 200*time.Millisecond, "reset restarts at the base window")
}
