package streamrt

import (
	"context"
	"testing"
	"time"
)

// contextBackground returns a context with a generous timeout, canceled
// automatically via t.Cleanup, for tests that need to bound a blocking Join.
func contextBackground(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
