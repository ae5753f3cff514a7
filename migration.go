package streamrt

// migrate realizes a pending MigrateTo request (§4.7, C9): invoke the
// caller's callback under the ULT's own mutex, atomically read off the
// target pool, rebind the unit's pool pointer, and push it there. Called by
// XStream.runULT when it clears a pending ReqMigrate: either when the unit
// is popped with the request already set (it is then not switched into),
// or right after a dispatch in which the ULT set ReqMigrate and then
// yielded. A ULT whose body returned is terminated instead, not migrated.
func (rt *Runtime) migrate(u *ULT) {
	u.mu.Lock()
	source := u.pool
	target := u.migrateTarget
	cb := u.migrateFn
	u.migrateTarget = nil
	u.migrateFn = nil
	if cb != nil {
		cb()
	}
	u.mu.Unlock()

	var tracker MigrationTracker
	if source != nil {
		tracker, _ = source.(MigrationTracker)
	}
	if tracker != nil {
		tracker.MigrationStarted()
	}
	// decMigration runs on every exit path below, exactly once, pairing
	// with the MigrationStarted call above (§4.7 step 6).
	decMigration := func() {
		if tracker != nil {
			tracker.MigrationFinished()
		}
	}

	if target == nil {
		// Request was cleared or never set between TestAndClear and here;
		// nothing to do.
		u.setState(ULTReady)
		decMigration()
		return
	}

	u.mu.Lock()
	u.pool = target
	u.mu.Unlock()

	consumer := target.Consumer()
	if consumer == nil {
		// §9(iii): migrating to a pool with no bound consumer orphans the
		// unit rather than losing it or blocking the migrating xstream.
		u.request.Set(ReqOrphan)
		u.setState(ULTBlocked)
		rt.logger().Info().Str("unit", u.Name()).Log("migration target pool has no consumer, orphaning unit")
		decMigration()
		return
	}

	u.setState(ULTReady)
	if err := target.Push(u); err != nil {
		rt.logger().Info().Err(err).Str("unit", u.Name()).Log("failed to push migrated unit to target pool")
		decMigration()
		return
	}
	decMigration()

	if consumer.State() == XSCreated {
		// Lazily wake a not-yet-started destination xstream so a migrated
		// unit is not stranded waiting for someone else to start it.
		_ = consumer.Start()
	}
}

// Unblock re-admits a BLOCKED (or ORPHANed) ULT to pool, clearing the block
// condition so its xstream's scheduler will dispatch it again. This is the
// counterpart to the BLOCK request bit (§4.2, §4.7 orphan handling): there
// is no implicit wakeup, something external must call this.
func (u *ULT) Unblock(pool Pool) error {
	if pool == nil {
		return newError(ErrInvalidPool, "Unblock", "nil pool")
	}
	u.mu.Lock()
	u.pool = pool
	u.mu.Unlock()
	u.request.Clear(ReqBlock)
	u.request.Clear(ReqOrphan)
	u.setState(ULTReady)
	return pool.Push(u)
}
