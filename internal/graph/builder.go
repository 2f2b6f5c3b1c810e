// Package graph extends a running pipeline with the decode chain once the
// source reports a video pad.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// ErrLink marks a pad that could not be connected into the chain. It is fatal
// to that pad only.
var ErrLink = errors.New("graph: link error")

// State is the chain ownership state of a Builder.
type State int

const (
	StateIdle State = iota
	StateChainBuilding
	StateChainLinked
	StateTorn
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChainBuilding:
		return "chain-building"
	case StateChainLinked:
		return "chain-linked"
	case StateTorn:
		return "torn"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// GLContext is the wrapped context the chain uploads into. Activate and
// Deactivate are called on the same pad thread.
type GLContext interface {
	Activate() error
	ShareWith(target any) error
	Deactivate() error
}

// Config wires a Builder to its pipeline and collaborators.
type Config struct {
	Factory  engine.Factory
	Pipeline engine.Pipeline
	Plan     Plan
	// GL is required when Plan.GLSink is set.
	GL GLContext
	// Deliver receives every decoded frame on the streaming thread.
	Deliver func(engine.Frame)
	// Warn receives non-fatal LinkErrors.
	Warn func(error)
	// Fatal receives context failures that end the run.
	Fatal func(error)
	// Built is notified of every build attempt.
	Built func(ok bool)
}

// Builder reacts to pad events and owns the decode chain. All build and
// unlink work runs under one lock, so a Removed event racing a build waits
// for the build to complete or abort.
type Builder struct {
	cfg Config

	mu         sync.Mutex
	state      State
	pad        engine.Pad
	queue      engine.Pad
	stages     []engine.Element
	inPipeline bool
	ignored    map[string]bool

	events atomic.Uint64
	builds atomic.Uint64
}

// New returns an idle builder.
func New(cfg Config) *Builder {
	if cfg.Warn == nil {
		cfg.Warn = func(error) {}
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(error) {}
	}
	return &Builder{cfg: cfg, ignored: map[string]bool{}}
}

// State returns the current chain state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// PadEvents returns the number of events handled.
func (b *Builder) PadEvents() uint64 { return b.events.Load() }

// Builds returns the number of successful chain builds.
func (b *Builder) Builds() uint64 { return b.builds.Load() }

// HandlePadEvent processes one pad event. It runs on the engine's
// pad-discovery thread.
func (b *Builder) HandlePadEvent(ev engine.PadEvent) {
	b.events.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Kind {
	case engine.PadAdded:
		b.added(ev)
	case engine.PadRemoved:
		b.removed(ev)
	}
}

func (b *Builder) added(ev engine.PadEvent) {
	name := ev.Pad.Name()
	log := slog.With("pad", name, "media_type", ev.MediaType)

	if b.state != StateIdle {
		b.ignored[name] = true
		log.Warn("graph: ignoring pad, chain already exists", "state", b.state)
		return
	}
	if ev.MediaType != "video" {
		b.ignored[name] = true
		log.Info("graph: ignoring non-video pad")
		return
	}
	if !strings.EqualFold(ev.Encoding, "H264") {
		b.ignored[name] = true
		b.cfg.Warn(fmt.Errorf("%w: pad %s: unsupported encoding %q", ErrLink, name, ev.Encoding))
		return
	}

	b.state = StateChainBuilding
	log.Debug("graph: building decode chain", "decoder", b.cfg.Plan.Decoder(), "caps", ev.Capabilities)

	if err := b.build(ev.Pad); err != nil {
		b.abort(ev.Pad)
		b.ignored[name] = true
		if b.cfg.Built != nil {
			b.cfg.Built(false)
		}
		var fatal contextError
		if errors.As(err, &fatal) {
			b.cfg.Fatal(fatal.err)
			return
		}
		b.cfg.Warn(fmt.Errorf("%w: pad %s: %v", ErrLink, name, err))
		return
	}

	b.pad = ev.Pad
	b.state = StateChainLinked
	b.builds.Add(1)
	if b.cfg.Built != nil {
		b.cfg.Built(true)
	}
	log.Info("graph: decode chain linked", "stages", len(b.stages))
}

// contextError separates GL failures, which end the run, from link failures.
type contextError struct{ err error }

func (e contextError) Error() string { return e.err.Error() }

func (b *Builder) build(pad engine.Pad) error {
	f, p, plan := b.cfg.Factory, b.cfg.Pipeline, b.cfg.Plan

	for _, st := range plan.Stages {
		el, err := newStage(f, st)
		if err != nil {
			return err
		}
		b.stages = append(b.stages, el)
	}

	sink, err := f.NewSink("sink")
	if err != nil {
		return fmt.Errorf("create appsink: %w", err)
	}
	if err := setProps(sink, plan.SinkProps); err != nil {
		return err
	}
	var last engine.Element = sink
	if plan.GLSink {
		bin, err := f.NewElement("glsinkbin", "glsink")
		if err != nil {
			return fmt.Errorf("create glsinkbin: %w", err)
		}
		if err := bin.Set("sink", sink); err != nil {
			return fmt.Errorf("glsinkbin sink: %w", err)
		}
		last = bin
	}
	b.stages = append(b.stages, last)

	if err := p.Add(b.stages...); err != nil {
		return fmt.Errorf("add stages: %w", err)
	}
	b.inPipeline = true
	if err := p.Link(b.stages...); err != nil {
		return fmt.Errorf("link stages: %w", err)
	}

	if plan.GLSink {
		if b.cfg.GL == nil {
			return contextError{errors.New("graph: GL upload requested without a wrapped context")}
		}
		if err := b.cfg.GL.Activate(); err != nil {
			return contextError{err}
		}
		// The wrapped context is only current while it is shared.
		glErr := b.cfg.GL.ShareWith(p)
		if err := b.cfg.GL.Deactivate(); glErr == nil {
			glErr = err
		}
		if glErr != nil {
			return contextError{glErr}
		}
	}

	queue, err := b.stages[0].StaticPad("sink")
	if err != nil {
		return err
	}
	if err := pad.Link(queue); err != nil {
		return fmt.Errorf("link %s to queue: %w", pad.Name(), err)
	}
	b.queue = queue

	if b.cfg.Deliver != nil {
		sink.OnFrame(b.cfg.Deliver)
	}

	for i := len(b.stages) - 1; i >= 0; i-- {
		if err := b.stages[i].SyncStateWithParent(); err != nil {
			return fmt.Errorf("sync %s: %w", b.stages[i].Name(), err)
		}
	}
	return nil
}

func newStage(f engine.Factory, st Stage) (engine.Element, error) {
	var (
		el  engine.Element
		err error
	)
	if st.Factory == "capsfilter" {
		el, err = f.NewCapsFilter(st.Name, st.Caps)
	} else {
		el, err = f.NewElement(st.Factory, st.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", st.Factory, err)
	}
	if err := setProps(el, st.Props); err != nil {
		return nil, err
	}
	return el, nil
}

func setProps(el engine.Element, props []Prop) error {
	for _, prop := range props {
		if err := el.Set(prop.Name, prop.Value); err != nil {
			return fmt.Errorf("%s.%s: %w", el.Name(), prop.Name, err)
		}
	}
	return nil
}

// abort undoes a partial build and returns the builder to idle.
func (b *Builder) abort(pad engine.Pad) {
	if b.queue != nil {
		if err := pad.Unlink(b.queue); err != nil {
			slog.Warn("graph: unlink aborted chain", "pad", pad.Name(), "error", err)
		}
		b.queue = nil
	}
	for _, el := range b.stages {
		if err := el.SetState(engine.StateNull); err != nil {
			slog.Warn("graph: stop aborted stage", "element", el.Name(), "error", err)
		}
	}
	if b.inPipeline {
		if err := b.cfg.Pipeline.Remove(b.stages...); err != nil {
			slog.Warn("graph: remove aborted stages", "error", err)
		}
	}
	b.stages, b.inPipeline = nil, false
	b.state = StateIdle
}

func (b *Builder) removed(ev engine.PadEvent) {
	name := ev.Pad.Name()

	if b.pad != nil && b.pad.Name() == name {
		b.unlink()
		slog.Info("graph: decode chain torn down", "pad", name)
		return
	}
	if b.ignored[name] {
		delete(b.ignored, name)
		slog.Debug("graph: ignored pad removed", "pad", name)
		return
	}
	b.cfg.Warn(fmt.Errorf("%w: pad %s removed before it was added", ErrLink, name))
}

// unlink detaches the source pad from the chain. Unlinking an already
// unlinked pad is a no-op.
func (b *Builder) unlink() {
	if b.state == StateTorn {
		return
	}
	if b.pad != nil && b.queue != nil {
		if err := b.pad.Unlink(b.queue); err != nil {
			slog.Warn("graph: unlink", "pad", b.pad.Name(), "error", err)
		}
	}
	b.state = StateTorn
}

// Close tears the chain down if it is linked. The stages stay in the
// pipeline and follow it to Null.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unlink()
}
