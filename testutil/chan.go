package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireReceive returns the next value from c. The test fails if ctx ends
// first or c is closed. Call it only from the test goroutine.
func RequireReceive[T any](ctx context.Context, t testing.TB, c <-chan T) T {
	t.Helper()
	var zero T
	select {
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting to receive", ctx.Err().Error())
		return zero
	case v, ok := <-c:
		require.True(t, ok, "channel closed before a value was received")
		return v
	}
}
