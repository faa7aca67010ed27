package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	happy := []Stage{StageValidating, StagePricing, StageReserving, StageIdentifying, StagePersisting, StagePlaced}
	for i := 0; i+1 < len(happy); i++ {
		assert.True(t, CanTransition(happy[i], happy[i+1]), "%s -> %s", happy[i], happy[i+1])
	}

	assert.True(t, CanTransition(StagePersisting, StageIdentifying), "collision retry")
	for _, s := range happy[:len(happy)-1] {
		assert.True(t, CanTransition(s, StageFailed), "%s -> FAILED", s)
	}

	assert.False(t, CanTransition(StageValidating, StageReserving))
	assert.False(t, CanTransition(StageReserving, StagePricing))
	assert.False(t, CanTransition(StagePlaced, StageFailed))
	assert.False(t, CanTransition(StageFailed, StageValidating))
	assert.True(t, StagePlaced.Terminal())
	assert.False(t, StagePersisting.Terminal())
}
