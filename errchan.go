package streamtexture

import (
	"log/slog"
	"sync"
)

// errorChannel carries the outcome of one run from the threads that observe
// failures (bus loop, pad-discovery callbacks) to the caller. The first
// terminal error wins; later ones are logged and dropped.
type errorChannel struct {
	terminal chan *ErrorRecord

	mu       sync.Mutex
	sealed   bool
	warnings []error
}

func newErrorChannel() *errorChannel {
	return &errorChannel{terminal: make(chan *ErrorRecord, 1)}
}

// fail offers rec as the run's terminal error and reports whether it was
// accepted.
func (c *errorChannel) fail(rec *ErrorRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sealed {
		select {
		case c.terminal <- rec:
			return true
		default:
		}
	}
	slog.Warn("stream-texture: error suppressed, run already has a terminal result",
		"kind", rec.Kind.String(),
		"component", rec.SourceComponent,
		"error", rec.Message,
	)
	return false
}

// warn records a non-fatal error.
func (c *errorChannel) warn(rec *ErrorRecord) {
	slog.Warn("stream-texture: warning",
		"kind", rec.Kind.String(),
		"component", rec.SourceComponent,
		"error", rec.Message,
	)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, rec)
}

// take seals the channel and returns the terminal error, if any. Later calls
// return nil.
func (c *errorChannel) take() *ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	select {
	case rec := <-c.terminal:
		return rec
	default:
		return nil
	}
}

func (c *errorChannel) list() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.warnings...)
}
