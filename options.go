package streamrt

// config holds resolved Runtime configuration (§6 Environment: default
// stack size for ULTs, whether to set CPU affinity, number of initial
// xstreams).
type config struct {
	defaultStackSize   int
	setAffinity        bool
	numInitialXStreams int
	logger             *Logger
}

// Option configures a Runtime at New time, mirroring the shape of
// eventloop.LoopOption / eventloop.loopOptions / eventloop.resolveLoopOptions.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithDefaultStackSize sets the default backing-stack size hint for ULTs
// created without an explicit size. Accepted for API fidelity with the
// source contract (§4.1, §6); Go's goroutine stacks grow and shrink on
// their own, so this is recorded but not enforced.
func WithDefaultStackSize(bytes int) Option {
	return optionFunc(func(c *config) {
		if bytes > 0 {
			c.defaultStackSize = bytes
		}
	})
}

// WithCPUAffinity enables (or, passed false, disables) setting each
// secondary xstream's CPU affinity to its rank modulo the CPU count, via
// the xstream's setAffinity (linux only; a no-op elsewhere).
func WithCPUAffinity(enabled bool) Option {
	return optionFunc(func(c *config) {
		c.setAffinity = enabled
	})
}

// WithInitialXStreams sets how many secondary xstreams New creates (and
// starts) in addition to the primary.
func WithInitialXStreams(n int) Option {
	return optionFunc(func(c *config) {
		if n >= 0 {
			c.numInitialXStreams = n
		}
	})
}

// WithLogger installs a structured logger; see Logger. The default, if
// this option is not supplied, is the package's no-op logger.
func WithLogger(l *Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithDefaultLogging installs the default stumpy-backed, stderr JSON
// logger at informational level. Equivalent to
// WithLogger(newDefaultLogger()).
func WithDefaultLogging() Option {
	return optionFunc(func(c *config) {
		c.logger = newDefaultLogger()
	})
}

func resolveOptions(opts []Option) *config {
	c := &config{
		defaultStackSize:   defaultULTStackSize,
		setAffinity:        false,
		numInitialXStreams: 0,
		logger:             newNoOpLogger(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(c)
	}
	return c
}

// defaultULTStackSize mirrors a typical Argobots-style default (8 MiB);
// see WithDefaultStackSize's doc comment for why this is a hint, not an
// enforced allocation.
const defaultULTStackSize = 8 << 20
