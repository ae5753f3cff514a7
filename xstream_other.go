//go:build !linux

package streamrt

// setAffinity is a documented no-op on platforms other than linux:
// golang.org/x/sys/unix's SchedSetaffinity/CPUSet are linux-only symbols
// (see affinity_linux.go in that module), so WithCPUAffinity has no
// realization here (§6 "whether to set CPU affinity").
func (es *XStream) setAffinity() error {
	return nil
}
