package streamrt

import (
	"context"
	"io"

	"github.com/joeycumines/go-longpoll"
)

// JoinMany waits for a batch of units to terminate, returning those that
// did before cfg's constraints (or ctx) cut it short — the batch-oriented
// counterpart to calling Join on each unit individually (§4.1
// xstream_join_many, generalized here to any Unit). cfg may be nil for
// longpoll's usual defaults (wait for at least 4, up to 16, with a 50ms
// partial-timeout grace period once the first unit terminates).
//
// A short-lived goroutine is started per unit to bridge its termination
// (a closed channel) onto the shared channel longpoll.Channel drains; they
// exit as soon as ctx is done, even if this call returns early.
func JoinMany(ctx context.Context, units []Unit, cfg *longpoll.ChannelConfig) ([]Unit, error) {
	ch := make(chan Unit, len(units))
	for _, u := range units {
		go func(u Unit) {
			select {
			case <-u.base().done:
			case <-ctx.Done():
				return
			}
			select {
			case ch <- u:
			case <-ctx.Done():
			}
		}(u)
	}

	var done []Unit
	err := longpoll.Channel(ctx, cfg, ch, func(u Unit) error {
		done = append(done, u)
		return nil
	})
	if err == io.EOF {
		err = nil
	}
	return done, err
}
