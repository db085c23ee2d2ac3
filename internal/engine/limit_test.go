package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitEnforcer(t *testing.T) {
	l := NewLimitEnforcer(3)

	require.NoError(t, l.Check("q1"))
	require.NoError(t, l.Check("q1"))
	err := l.Check("q1")
	require.Error(t, err)
	assert.True(t, IsLimitReached(err))
	assert.True(t, IsLimitReached(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, 3, l.Current())
	assert.Contains(t, err.Error(), "limit of 3")
}

func TestLimitEnforcer_Unlimited(t *testing.T) {
	l := NewLimitEnforcer(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Check("q1"))
	}
}
