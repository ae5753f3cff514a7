package streamrt

// Pool is the C3 contract: a queue of ready work units with a single
// assignable consumer xstream. A pool's queueing discipline
// (FIFO/LIFO/priority) is pluggable and out of scope for this package; see
// package pool for the one reference implementation this module ships.
//
// Pop may only be called by the xstream currently bound as Consumer (I2);
// implementations are not required to enforce this themselves — the
// runtime's dispatcher is the only caller of Pop, and always calls it as
// the consumer.
//
// get_type/get_thread/get_task from the source contract are Unit-level
// concerns in this realization: see Unit.Kind, AsULT, AsTasklet.
type Pool interface {
	// Push adds a unit to the pool. Any xstream (or external agent) may
	// call Push concurrently with a Pop from the consumer.
	Push(u Unit) error

	// Pop removes and returns a unit, or (nil, false) if the pool is
	// currently empty. Only the consumer xstream may call Pop.
	Pop() (Unit, bool)

	// Size returns the current number of queued units. Best-effort under
	// concurrent Push.
	Size() int

	// Consumer returns the xstream currently authorized to Pop, or nil.
	Consumer() *XStream

	// SetConsumer (re)binds the pool's consumer. Implementations must
	// fail with ErrConsumerConflict if a different, non-nil xstream is
	// already bound (§4.3).
	SetConsumer(es *XStream) error
}

// MigrationTracker is an optional Pool extension (§4.7 step 6: "decrement
// the source pool's in-flight-migrations counter"). The migration engine
// (migration.go) calls MigrationStarted on a unit's source pool the moment
// it realizes a MIGRATE request, and MigrationFinished once that unit has
// either landed in its destination pool or been orphaned — for any Pool
// that implements this interface (both basicFIFO and package pool's FIFO
// do). Pools that don't are migrated from without this bookkeeping.
type MigrationTracker interface {
	MigrationStarted()
	MigrationFinished()
}
