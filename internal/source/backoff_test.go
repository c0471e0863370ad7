package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 10 * time.Second, MaxAttempts: 5}

	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(4))
	assert.Equal(t, 10*time.Second, b.Delay(20))
	assert.Equal(t, 2*time.Second, b.Delay(0))
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, time.Minute, b.Delay(30))
}

func TestBackoffExhausted(t *testing.T) {
	b := Backoff{MaxAttempts: 3}
	assert.False(t, b.Exhausted(3))
	assert.True(t, b.Exhausted(4))

	unlimited := Backoff{}
	assert.False(t, unlimited.Exhausted(1000))
}
