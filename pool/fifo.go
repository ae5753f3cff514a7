// Package pool ships the reference Pool implementation: a chunked,
// linked-list FIFO queue, adapted from the eventloop package's
// microsecond-scale ingress queue for this module's coarser unit of work (a Unit
// rather than a func()), plus a rate-limited idle-spin notifier built on
// catrate.
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/streamrt"
)

// chunkSize mirrors the eventloop package's ChunkedIngress: large enough to
// amortize allocation, small enough to keep a chunk within a cache line's
// reach of its neighbors.
const chunkSize = 128

// chunk is a fixed-size node in the FIFO's linked list of ready units.
type chunk struct {
	units   [chunkSize]streamrt.Unit
	next    *chunk
	readPos int
	pos     int
}

var chunkPool = sync.Pool{New: func() any { return &chunk{} }}

func newChunk() *chunk {
	c := chunkPool.Get().(*chunk)
	c.pos, c.readPos, c.next = 0, 0, nil
	return c
}

func returnChunk(c *chunk) {
	for i := 0; i < c.pos; i++ {
		c.units[i] = nil
	}
	c.pos, c.readPos, c.next = 0, 0, nil
	chunkPool.Put(c)
}

// FIFO is a chunked-linked-list Pool (C3), with a single bound consumer
// xstream (I2) and a catrate-backed notifier for idle-spin logging.
type FIFO struct {
	mu     sync.Mutex
	head   *chunk
	tail   *chunk
	length int

	consumerMu sync.Mutex
	consumer   *streamrt.XStream

	idle *catrate.Limiter

	migrating atomic.Int64
}

// Option configures a FIFO at construction time.
type Option func(*FIFO)

// WithIdleLogRate bounds how often NoteIdle reports true, so a scheduler's
// idle-spin path can log without flooding: at most n times per window.
func WithIdleLogRate(window time.Duration, n int) Option {
	return func(p *FIFO) {
		p.idle = catrate.NewLimiter(map[time.Duration]int{window: n})
	}
}

// NewFIFO constructs an empty FIFO pool.
func NewFIFO(opts ...Option) *FIFO {
	p := &FIFO{idle: catrate.NewLimiter(map[time.Duration]int{time.Second: 1})}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Push adds a unit to the queue. Safe for concurrent use, including
// concurrently with the consumer's Pop.
func (p *FIFO) Push(u streamrt.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tail == nil {
		p.tail = newChunk()
		p.head = p.tail
	}
	if p.tail.pos == len(p.tail.units) {
		next := newChunk()
		p.tail.next = next
		p.tail = next
	}
	p.tail.units[p.tail.pos] = u
	p.tail.pos++
	p.length++
	return nil
}

// Pop removes and returns the oldest queued unit. Must only be called by
// the bound consumer xstream (I2); the pool does not itself enforce this
// since the runtime's dispatcher is the only caller.
func (p *FIFO) Pop() (streamrt.Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.popLocked()
}

func (p *FIFO) popLocked() (streamrt.Unit, bool) {
	if p.head == nil {
		return nil, false
	}
	if p.head.readPos >= p.head.pos {
		if p.head == p.tail {
			p.head.pos, p.head.readPos = 0, 0
			return nil, false
		}
		old := p.head
		p.head = p.head.next
		returnChunk(old)
		if p.head.readPos >= p.head.pos {
			return nil, false
		}
	}

	u := p.head.units[p.head.readPos]
	p.head.units[p.head.readPos] = nil
	p.head.readPos++
	p.length--

	if p.head.readPos >= p.head.pos && p.head != p.tail {
		old := p.head
		p.head = p.head.next
		returnChunk(old)
	}

	return u, true
}

// PopBatch drains up to max ready units in one call: the microbatch idea
// (group several units of work together to amortize the cost of whatever
// wraps each dispatch — here, a checkEvents call per Scheduler.Run
// iteration) applied to pool draining rather than submission. Returns fewer
// than max, possibly zero, if the pool empties first.
func (p *FIFO) PopBatch(max int) []streamrt.Unit {
	if max <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]streamrt.Unit, 0, max)
	for len(out) < max {
		u, ok := p.popLocked()
		if !ok {
			break
		}
		out = append(out, u)
	}
	return out
}

// Size returns the current number of queued units.
func (p *FIFO) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

// Consumer returns the xstream currently bound to Pop this pool.
func (p *FIFO) Consumer() *streamrt.XStream {
	p.consumerMu.Lock()
	defer p.consumerMu.Unlock()
	return p.consumer
}

// SetConsumer binds es as the pool's sole consumer (I2, §4.3). Fails if a
// different, non-nil consumer is already bound.
func (p *FIFO) SetConsumer(es *streamrt.XStream) error {
	p.consumerMu.Lock()
	defer p.consumerMu.Unlock()
	if p.consumer != nil && p.consumer != es {
		return &streamrt.Error{Kind: streamrt.ErrConsumerConflict, Op: "SetConsumer", Msg: "pool already bound to a different xstream"}
	}
	p.consumer = es
	return nil
}

// NoteIdle reports whether the caller's idle-spin branch should log this
// time (at most the configured rate), and the time after which it may log
// again if it declines to now. Intended for a custom SelectFunc's
// not-ready path, to avoid flooding logs when a pool sits empty under low
// load.
func (p *FIFO) NoteIdle() (time.Time, bool) {
	return p.idle.Allow("idle")
}

// MigrationStarted and MigrationFinished realize streamrt.MigrationTracker
// (§4.7 step 6, "decrement the source pool's in-flight-migrations
// counter"): the migration engine calls these around realizing a unit's
// move off this pool.
func (p *FIFO) MigrationStarted()  { p.migrating.Add(1) }
func (p *FIFO) MigrationFinished() { p.migrating.Add(-1) }

// InFlightMigrations returns the number of units currently mid-migration
// away from this pool.
func (p *FIFO) InFlightMigrations() int64 { return p.migrating.Load() }
