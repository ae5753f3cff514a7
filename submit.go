package streamrt

import (
	"context"

	"github.com/joeycumines/go-microbatch"
)

// submitJob pairs a unit with the pool it should be pushed onto, the unit
// of work a Submitter batches.
type submitJob struct {
	unit Unit
	pool Pool
}

// Submitter amortizes a pool's Push lock across bursts of concurrent
// submitters, by grouping pending pushes into small batches (C3's Push is
// safe for concurrent use already; this exists purely to reduce lock
// contention and syscall-adjacent overhead under very bursty fan-in, the
// same problem the source contract's "microbatch" idea targets for
// independent remote calls).
type Submitter struct {
	b *microbatch.Batcher[*submitJob]
}

// NewSubmitter constructs a Submitter. cfg may be nil for the package's
// usual defaults (batches of up to 16, flushed after 50ms).
func NewSubmitter(cfg *microbatch.BatcherConfig) *Submitter {
	s := &Submitter{}
	s.b = microbatch.NewBatcher(cfg, func(ctx context.Context, jobs []*submitJob) error {
		for _, j := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := j.pool.Push(j.unit); err != nil {
				return err
			}
		}
		return nil
	})
	return s
}

// Submit pushes u onto pool as part of the Submitter's current (or next)
// batch, blocking until that batch has been pushed or ctx is done. u is
// READY for dispatch as soon as Submit returns nil.
func (s *Submitter) Submit(ctx context.Context, u Unit, pool Pool) error {
	res, err := s.b.Submit(ctx, &submitJob{unit: u, pool: pool})
	if err != nil {
		return err
	}
	return res.Wait(ctx)
}

// Close stops accepting submissions and waits for any in-flight batch to
// finish pushing.
func (s *Submitter) Close() error {
	return s.b.Close()
}
