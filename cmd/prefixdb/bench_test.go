package main

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunBench(t *testing.T) {
	result := runBench(context.Background(), benchConfig{
		prefixes: 2000,
		searches: 2000,
		rand:     rand.New(rand.NewSource(1)),
		dir:      t.TempDir(),
	})
	require.True(t, result.ok(), "%+v", result)
	require.Equal(t, 2000, result.matched+result.unmatched)
	require.Positive(t, result.matched)
}
