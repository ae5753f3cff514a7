package streamrt

import (
	"sync"
	"sync/atomic"
)

// basicFIFO is the minimal Pool this package needs to bootstrap a Runtime's
// main schedulers before any richer pool is plugged in. Package pool ships
// the batching, backoff-aware reference implementation intended for actual
// workloads; this one stays deliberately small (a mutex and a slice) so the
// core package never needs to import its own companion subpackage.
type basicFIFO struct {
	mu       sync.Mutex
	units    []Unit
	consumer *XStream

	migrating atomic.Int64
}

func newBasicFIFO() *basicFIFO {
	return &basicFIFO{}
}

func (p *basicFIFO) Push(u Unit) error {
	p.mu.Lock()
	p.units = append(p.units, u)
	p.mu.Unlock()
	return nil
}

func (p *basicFIFO) Pop() (Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.units) == 0 {
		return nil, false
	}
	u := p.units[0]
	p.units[0] = nil
	p.units = p.units[1:]
	return u, true
}

func (p *basicFIFO) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units)
}

func (p *basicFIFO) Consumer() *XStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumer
}

func (p *basicFIFO) SetConsumer(es *XStream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumer != nil && p.consumer != es {
		return newError(ErrConsumerConflict, "SetConsumer", "pool already bound to a different xstream")
	}
	p.consumer = es
	return nil
}

// MigrationStarted and MigrationFinished realize MigrationTracker (§4.7
// step 6), so a unit migrating off a bootstrap pool is counted the same
// way as one migrating off a package pool.FIFO.
func (p *basicFIFO) MigrationStarted()  { p.migrating.Add(1) }
func (p *basicFIFO) MigrationFinished() { p.migrating.Add(-1) }

// InFlightMigrations returns the number of units currently mid-migration
// away from this pool.
func (p *basicFIFO) InFlightMigrations() int64 { return p.migrating.Load() }
