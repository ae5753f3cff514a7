//go:build linux

package streamrt

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinity pins a SECONDARY xstream's backing OS thread to the CPU
// numbered by its rank modulo runtime.NumCPU, when WithCPUAffinity is
// enabled (§6). A no-op
// (returns nil) for the PRIMARY xstream, and when affinity is disabled.
func (es *XStream) setAffinity() error {
	if es.typ != Secondary || !es.rt.config.setAffinity {
		return nil
	}
	n := runtime.NumCPU()
	if n <= 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(int(es.rank % uint64(n)))
	return unix.SchedSetaffinity(0, &set)
}
