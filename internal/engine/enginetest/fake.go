// Package enginetest provides an in-memory engine for tests.
//
// Pipelines keep an ordered list of added elements, pads record their peers,
// the bus is a buffered channel and sources/sinks expose Emit/Push helpers so
// tests can drive pad discovery and frame delivery from any goroutine.
package enginetest

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// Factory is an engine.Factory backed by memory.
type Factory struct {
	mu sync.Mutex

	// Missing lists element factories reported as not installed.
	Missing map[string]bool
	// FailElement makes NewElement fail for the given factory names.
	FailElement map[string]error
	// FailLink makes Pipeline.Link fail when it reaches an element of the
	// given factory.
	FailLink map[string]error
	// FailState makes Pipeline.SetState fail when moving to the given state.
	FailState map[engine.State]error
	// FailElementState makes Element.SetState fail for the given factory names.
	FailElementState map[string]error
	// FailSync makes Element.SyncStateWithParent fail for the given factory
	// names.
	FailSync map[string]error

	pipelines []*Pipeline
	sources   []*Source
	sinks     []*Sink
	elements  []*Element
}

// NewFactory returns an empty factory where every element exists.
func NewFactory() *Factory {
	return &Factory{
		Missing:          map[string]bool{},
		FailElement:      map[string]error{},
		FailLink:         map[string]error{},
		FailState:        map[engine.State]error{},
		FailElementState: map[string]error{},
		FailSync:         map[string]error{},
	}
}

func (f *Factory) Has(factory string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Missing[factory]
}

func (f *Factory) NewPipeline(name string) (engine.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("pipeline%d", len(f.pipelines))
	}
	p := &Pipeline{
		name:    name,
		factory: f,
		bus:     &Bus{ch: make(chan engine.Message, 64)},
	}
	f.pipelines = append(f.pipelines, p)
	return p, nil
}

func (f *Factory) newElement(factory, name string) (*Element, error) {
	if f.Missing[factory] {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoFactory, factory)
	}
	if err := f.FailElement[factory]; err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", factory, len(f.elements))
	}
	e := &Element{
		owner:   f,
		name:    name,
		factory: factory,
		props:   map[string]any{},
	}
	e.sinkPad = &Pad{name: "sink", owner: e}
	e.srcPad = &Pad{name: "src", owner: e}
	f.elements = append(f.elements, e)
	return e, nil
}

func (f *Factory) NewElement(factory, name string) (engine.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newElement(factory, name)
}

func (f *Factory) NewCapsFilter(name, caps string) (engine.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.newElement("capsfilter", name)
	if err != nil {
		return nil, err
	}
	e.props["caps"] = caps
	return e, nil
}

func (f *Factory) NewSource(factory, name string) (engine.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.newElement(factory, name)
	if err != nil {
		return nil, err
	}
	s := &Source{Element: e}
	f.sources = append(f.sources, s)
	return s, nil
}

func (f *Factory) NewSink(name string) (engine.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, err := f.newElement("appsink", name)
	if err != nil {
		return nil, err
	}
	s := &Sink{Element: e}
	f.sinks = append(f.sinks, s)
	return s, nil
}

// LastPipeline returns the most recently created pipeline.
func (f *Factory) LastPipeline() *Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pipelines) == 0 {
		return nil
	}
	return f.pipelines[len(f.pipelines)-1]
}

// LastSource returns the most recently created source.
func (f *Factory) LastSource() *Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return nil
	}
	return f.sources[len(f.sources)-1]
}

// LastSink returns the most recently created sink.
func (f *Factory) LastSink() *Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sinks) == 0 {
		return nil
	}
	return f.sinks[len(f.sinks)-1]
}

// Created returns the number of elements created with the given factory.
func (f *Factory) Created(factory string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.elements {
		if e.factory == factory {
			n++
		}
	}
	return n
}

// Element is an in-memory engine.Element.
type Element struct {
	owner   *Factory
	mu      sync.Mutex
	name    string
	factory string
	props   map[string]any
	state   engine.State
	synced  int
	sinkPad *Pad
	srcPad  *Pad
}

func (e *Element) Name() string    { return e.name }
func (e *Element) Factory() string { return e.factory }

func (e *Element) Set(property string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[property] = value
	return nil
}

// Property returns a previously set property value.
func (e *Element) Property(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props[name]
}

func (e *Element) StaticPad(name string) (engine.Pad, error) {
	switch name {
	case "sink":
		return e.sinkPad, nil
	case "src":
		return e.srcPad, nil
	}
	return nil, fmt.Errorf("enginetest: %s has no pad %q", e.name, name)
}

func (e *Element) failure(fail func(*Factory) map[string]error) error {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	return fail(e.owner)[e.factory]
}

func (e *Element) SetState(state engine.State) error {
	if err := e.failure(func(f *Factory) map[string]error { return f.FailElementState }); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
	return nil
}

func (e *Element) SyncStateWithParent() error {
	if err := e.failure(func(f *Factory) map[string]error { return f.FailSync }); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synced++
	return nil
}

// State returns the element's current state.
func (e *Element) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Synced reports how many times SyncStateWithParent was called.
func (e *Element) Synced() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synced
}

// Source is an in-memory engine.Source.
type Source struct {
	*Element

	mu      sync.Mutex
	added   func(engine.Pad)
	removed func(engine.Pad)
}

func (s *Source) WatchPads(added, removed func(engine.Pad)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added, s.removed = added, removed
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.added, s.removed = nil, nil
	}, nil
}

// Watched reports whether pad handlers are connected.
func (s *Source) Watched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added != nil
}

// EmitPadAdded invokes the pad-added handler on the calling goroutine, pinned
// to its OS thread for the duration like an engine streaming thread.
func (s *Source) EmitPadAdded(p engine.Pad) {
	s.mu.Lock()
	h := s.added
	s.mu.Unlock()
	emit(h, p)
}

// EmitPadRemoved invokes the pad-removed handler like EmitPadAdded.
func (s *Source) EmitPadRemoved(p engine.Pad) {
	s.mu.Lock()
	h := s.removed
	s.mu.Unlock()
	emit(h, p)
}

func emit(h func(engine.Pad), p engine.Pad) {
	if h == nil {
		return
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	h(p)
}

// Sink is an in-memory engine.Sink.
type Sink struct {
	*Element

	mu      sync.Mutex
	handler func(engine.Frame)
}

func (s *Sink) OnFrame(handler func(engine.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Push delivers a frame to the registered handler, as the streaming thread
// would. It reports whether a handler was registered.
func (s *Sink) Push(f engine.Frame) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(f)
	return true
}

// Pad is an in-memory engine.Pad.
type Pad struct {
	mu        sync.Mutex
	name      string
	owner     *Element
	caps      string
	media     string
	encoding  string
	peer      *Pad
	linkErr   error
	unlinkErr error
}

// NewSourcePad returns a free-standing dynamic pad, as raised by a source.
func NewSourcePad(name, media, encoding string) *Pad {
	return &Pad{
		name:     name,
		media:    media,
		encoding: encoding,
		caps:     fmt.Sprintf("application/x-rtp, media=(string)%s, encoding-name=(string)%s", media, encoding),
	}
}

// FailLinks makes every Link call on this pad fail with err.
func (p *Pad) FailLinks(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linkErr = err
}

// FailUnlinks makes every Unlink call on this pad fail with err. The link
// stays in place.
func (p *Pad) FailUnlinks(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlinkErr = err
}

func (p *Pad) Name() string      { return p.name }
func (p *Pad) Caps() string      { return p.caps }
func (p *Pad) MediaType() string { return p.media }
func (p *Pad) Encoding() string  { return p.encoding }

func (p *Pad) Link(sink engine.Pad) error {
	peer, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("enginetest: foreign pad %T", sink)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.linkErr != nil {
		return p.linkErr
	}
	if p.peer != nil {
		return fmt.Errorf("enginetest: pad %s already linked", p.name)
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.peer != nil {
		return fmt.Errorf("enginetest: pad %s already linked", peer.name)
	}
	p.peer, peer.peer = peer, p
	return nil
}

func (p *Pad) Unlink(sink engine.Pad) error {
	peer, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("enginetest: foreign pad %T", sink)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlinkErr != nil {
		return p.unlinkErr
	}
	if p.peer != peer {
		return nil
	}
	peer.mu.Lock()
	peer.peer = nil
	peer.mu.Unlock()
	p.peer = nil
	return nil
}

func (p *Pad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

// Pipeline is an in-memory engine.Pipeline.
type Pipeline struct {
	mu       sync.Mutex
	name     string
	factory  *Factory
	elements []engine.Element
	states   []engine.State
	bus      *Bus
}

func (p *Pipeline) Name() string { return p.name }

// NativePointer returns a stable fake handle so GL sharing can target the
// pipeline.
func (p *Pipeline) NativePointer() uintptr { return uintptr(unsafe.Pointer(p)) }

func (p *Pipeline) Add(elements ...engine.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range elements {
		for _, have := range p.elements {
			if have == e {
				return fmt.Errorf("enginetest: %s already in %s", e.Name(), p.name)
			}
		}
		p.elements = append(p.elements, e)
	}
	return nil
}

func (p *Pipeline) Remove(elements ...engine.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range elements {
		for i, have := range p.elements {
			if have == e {
				p.elements = append(p.elements[:i], p.elements[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (p *Pipeline) Link(elements ...engine.Element) error {
	p.factory.mu.Lock()
	failLink := p.factory.FailLink
	p.factory.mu.Unlock()
	for i := 0; i+1 < len(elements); i++ {
		if err := failLink[elements[i+1].Factory()]; err != nil {
			return err
		}
		src, err := elements[i].StaticPad("src")
		if err != nil {
			return err
		}
		sink, err := elements[i+1].StaticPad("sink")
		if err != nil {
			return err
		}
		if err := src.Link(sink); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) SetState(state engine.State) error {
	p.factory.mu.Lock()
	err := p.factory.FailState[state]
	p.factory.mu.Unlock()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

func (p *Pipeline) Bus() engine.Bus { return p.bus }

func (p *Pipeline) Shutdown() {
	p.Post(engine.Message{Type: engine.MessageShutdown, Source: p.name})
}

// Post places a message on the pipeline's bus.
func (p *Pipeline) Post(m engine.Message) {
	p.bus.ch <- m
}

// States returns every state the pipeline was asked to enter, in order.
func (p *Pipeline) States() []engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.State(nil), p.states...)
}

// Elements returns the elements currently in the pipeline.
func (p *Pipeline) Elements() []engine.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Element(nil), p.elements...)
}

// Contains reports whether an element of the given factory is in the pipeline.
func (p *Pipeline) Contains(factory string) bool {
	for _, e := range p.Elements() {
		if e.Factory() == factory {
			return true
		}
	}
	return false
}

// Bus is a channel-backed engine.Bus.
type Bus struct {
	ch chan engine.Message
}

func (b *Bus) Pop(timeout time.Duration) (engine.Message, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-b.ch:
		return m, true
	case <-t.C:
		return engine.Message{}, false
	}
}
