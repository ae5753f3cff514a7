package streamrt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestProperty_P3_RequestIdempotent covers P3: honoring a request bit (via
// Set/Clear/TestAndClear) is idempotent — setting or clearing a bit twice
// has the same observable effect as doing it once, and other bits in the
// word are left untouched.
func TestProperty_P3_RequestIdempotent(t *testing.T) {
	var r Request

	r.Set(ReqExit)
	r.Set(ReqExit)
	require.True(t, r.Has(ReqExit))

	r.Clear(ReqExit)
	r.Clear(ReqExit)
	require.False(t, r.Has(ReqExit))

	r.Set(ReqJoin | ReqCancel)
	require.True(t, r.Has(ReqJoin))
	require.True(t, r.Has(ReqCancel))

	r.Clear(ReqCancel)
	require.True(t, r.Has(ReqJoin))
	require.False(t, r.Has(ReqCancel))

	require.True(t, r.TestAndClear(ReqJoin))
	require.False(t, r.Has(ReqJoin))
	require.False(t, r.TestAndClear(ReqJoin))
}

func TestRequest_ConcurrentSetIsRaceFree(t *testing.T) {
	var r Request
	var wg sync.WaitGroup
	bits := []uint32{ReqJoin, ReqExit, ReqCancel, ReqStop}
	for _, b := range bits {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r.Set(b)
			}
		}()
	}
	wg.Wait()
	for _, b := range bits {
		require.True(t, r.Has(b))
	}
}
