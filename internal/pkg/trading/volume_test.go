package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVolume(t *testing.T) {
	t.Run("rounds down to step", func(t *testing.T) {
		assert.Equal(t, 0.05, NormalizeVolume(0.057, 0.01, 0.01, 100))
		assert.Equal(t, 0.01, NormalizeVolume(0.0199, 0.01, 0.01, 100))
	})

	t.Run("clamps to max", func(t *testing.T) {
		assert.Equal(t, 100.0, NormalizeVolume(250, 0.01, 0.01, 100))
	})

	t.Run("below minimum yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, NormalizeVolume(0.004, 0.01, 0.01, 100))
	})

	t.Run("non-positive volume yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, NormalizeVolume(0, 0.01, 0.01, 100))
		assert.Equal(t, 0.0, NormalizeVolume(-1, 0.01, 0.01, 100))
	})

	t.Run("zero step leaves volume unrounded", func(t *testing.T) {
		assert.Equal(t, 0.057, NormalizeVolume(0.057, 0, 0.01, 100))
	})
}
