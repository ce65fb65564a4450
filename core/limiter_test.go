package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	require.NoError(t, l.Check(2))
	assert.ErrorIs(t, l.Check(3), ErrChainLimit)

	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())
	assert.ErrorIs(t, l.Increment(), ErrChainLimit)
	assert.Equal(t, 3, l.Count())
}

func TestStepLimiter_Unlimited(t *testing.T) {
	l := NewStepLimiter(0)
	require.NoError(t, l.Check(1000))
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Increment())
	}
	assert.Equal(t, -1, l.Remaining())
}
