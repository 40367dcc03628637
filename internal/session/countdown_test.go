// internal/session/countdown_test.go
package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownResumesFromServerEpoch(t *testing.T) {
	c := NewCountdown(nil)
	defer c.Stop()

	// 10 seconds already elapsed on the server clock.
	c.Start(600, time.Now().Unix()-10)
	assert.InDelta(t, 590, c.Remaining(), 1)
	assert.True(t, c.Running())
}

func TestCountdownFloorsAtZero(t *testing.T) {
	c := NewCountdown(nil)

	c.Start(60, time.Now().Unix()-3600)
	assert.Equal(t, 0, c.Remaining())
	assert.False(t, c.Running(), "an expired countdown never starts ticking")

	// A start epoch in the future counts as zero elapsed.
	c.Start(60, time.Now().Unix()+100)
	assert.InDelta(t, 60, c.Remaining(), 1)
	c.Stop()
}

func TestCountdownStopIsIdempotent(t *testing.T) {
	c := NewCountdown(nil)
	c.Start(600, time.Now().Unix())
	require.True(t, c.Running())

	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestCountdownTicksDownAndStopsAtZero(t *testing.T) {
	ticks := make(chan int, 16)
	c := NewCountdown(func(rem int) { ticks <- rem })
	c.interval = 5 * time.Millisecond

	c.Start(3, time.Now().Unix())

	var got []int
	deadline := time.After(time.Second)
	for len(got) < 3 {
		select {
		case rem := <-ticks:
			got = append(got, rem)
		case <-deadline:
			t.Fatalf("timed out after ticks %v", got)
		}
	}

	assert.Equal(t, []int{2, 1, 0}, got)
	assert.Equal(t, 0, c.Remaining())
	assert.False(t, c.Running())

	// No tick after the final zero.
	select {
	case rem := <-ticks:
		t.Fatalf("unexpected tick %d after zero", rem)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCountdownRestartReplacesTicker(t *testing.T) {
	c := NewCountdown(nil)
	defer c.Stop()

	c.Start(600, time.Now().Unix())
	c.Start(60, time.Now().Unix())
	assert.InDelta(t, 60, c.Remaining(), 1)
	assert.True(t, c.Running())
}
