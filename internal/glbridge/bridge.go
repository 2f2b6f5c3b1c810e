// Package glbridge wraps a GL context owned by a host surface so the decode
// chain can upload into it.
//
// Caller contract: Activate must be called on the OS thread that will later
// issue GL upload operations for the context. Activating from another thread
// is undefined for the engine; the bridge records the activating thread and
// CheckThread reports a mismatch, but it never moves the context.
package glbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

var (
	// ErrContext marks a wrap or activation failure.
	ErrContext = errors.New("glbridge: context error")
	// ErrThread is returned by CheckThread when called off the activating thread.
	ErrThread = errors.New("glbridge: called off the activating thread")
)

// Native is an engine-side wrapped context.
type Native interface {
	Activate(active bool) error
	// Share installs the display and application context on a pipeline or
	// element so GL stages pick the wrapped context up.
	Share(target uintptr) error
	Release()
}

// Wrapper creates engine-side wrapped contexts.
type Wrapper interface {
	Wrap(h Handle) (Native, error)
}

// Context is a wrapped, non-owning GL context.
type Context struct {
	handle Handle
	native Native

	mu       sync.Mutex
	thread   int
	active   bool
	released bool
}

// Wrap validates h and wraps it through w.
func Wrap(h Handle, w Wrapper) (*Context, error) {
	if h.IsZero() {
		return nil, fmt.Errorf("%w: null context handle", ErrContext)
	}
	if _, ok := platformDisplays[h.Platform]; !ok {
		return nil, fmt.Errorf("%w: unsupported platform %s", ErrContext, h.Platform)
	}
	switch h.API {
	case APIGL, APIGL3, APIGLES2:
	default:
		return nil, fmt.Errorf("%w: unsupported api %s", ErrContext, h.API)
	}

	native, err := w.Wrap(h)
	if err != nil {
		if errors.Is(err, ErrContext) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrContext, err)
	}

	slog.Debug("glbridge: context wrapped", "handle", h.String())
	return &Context{handle: h, native: native}, nil
}

// Handle returns the wrapped host handle.
func (c *Context) Handle() Handle { return c.handle }

// Activate makes the context current on the calling OS thread and records
// that thread. Callers running on goroutines must hold runtime.LockOSThread.
func (c *Context) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return fmt.Errorf("%w: context released", ErrContext)
	}
	if err := c.native.Activate(true); err != nil {
		return fmt.Errorf("%w: activate: %v", ErrContext, err)
	}
	c.thread = currentThread()
	c.active = true
	slog.Debug("glbridge: context activated", "thread", c.thread)
	return nil
}

// ShareWith hands the wrapped context to target, which must expose its
// native handle.
func (c *Context) ShareWith(target any) error {
	n, ok := target.(engine.Native)
	if !ok {
		return fmt.Errorf("%w: %T has no native handle", ErrContext, target)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return fmt.Errorf("%w: context released", ErrContext)
	}
	if err := c.native.Share(n.NativePointer()); err != nil {
		return fmt.Errorf("%w: share: %v", ErrContext, err)
	}
	return nil
}

// CheckThread reports whether the caller runs on the activating thread. It
// returns nil when the context was never activated or the platform cannot
// identify threads.
func (c *Context) CheckThread() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onThread()
}

func (c *Context) onThread() error {
	if c.thread == 0 {
		return nil
	}
	if cur := currentThread(); cur != 0 && cur != c.thread {
		return fmt.Errorf("%w: activated on %d, called on %d", ErrThread, c.thread, cur)
	}
	return nil
}

// Deactivate makes the context no longer current. It must run on the
// activating thread; from any other thread it returns ErrThread and the
// context stays current.
func (c *Context) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || !c.active {
		return nil
	}
	if err := c.onThread(); err != nil {
		return err
	}
	if err := c.native.Activate(false); err != nil {
		return fmt.Errorf("%w: deactivate: %v", ErrContext, err)
	}
	c.active = false
	slog.Debug("glbridge: context deactivated", "thread", c.thread)
	return nil
}

// Release drops the engine-side wrapper. The host context itself is
// untouched. A context still active is deactivated only when Release runs on
// the activating thread; otherwise deactivation is left to the host.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	if c.active {
		if err := c.onThread(); err != nil {
			slog.Warn("glbridge: release off the activating thread, context left current", "error", err)
		} else if err := c.native.Activate(false); err != nil {
			slog.Warn("glbridge: deactivate failed", "error", err)
		}
		c.active = false
	}
	c.native.Release()
	c.released = true
}
