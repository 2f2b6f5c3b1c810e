// Package engine describes the media-processing engine the stream-texture
// pipeline is built on.
//
// The interfaces are deliberately narrow: they cover exactly what the
// controller, the stream source and the graph builder need from the engine
// (element creation, dynamic pads, state changes and the bus). The production
// implementation lives in internal/gstengine; internal/engine/enginetest
// provides an in-memory engine used to inject pad events, bus messages and
// frames in tests.
package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoFactory is returned when an element factory is not installed.
var ErrNoFactory = errors.New("engine: element factory not available")

// State mirrors the engine's element state.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageType identifies a bus notification.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageEOS
	MessageError
	MessageWarning
	MessageStateChanged
	// MessageShutdown is posted by Pipeline.Shutdown so that a blocked bus
	// reader returns promptly during teardown.
	MessageShutdown
)

func (t MessageType) String() string {
	switch t {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageStateChanged:
		return "state-changed"
	case MessageShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Message is a bus notification translated out of the engine's native type.
type Message struct {
	Type   MessageType
	Source string

	// Set for MessageStateChanged.
	OldState State
	NewState State

	// Set for MessageError and MessageWarning.
	Text  string
	Debug string
}

// PadEventKind distinguishes dynamic pad appearance from removal.
type PadEventKind int

const (
	PadAdded PadEventKind = iota
	PadRemoved
)

func (k PadEventKind) String() string {
	if k == PadAdded {
		return "added"
	}
	return "removed"
}

// PadEvent is raised by a source element once it knows a stream's media type.
// Capabilities is the engine's caps description of the pad.
type PadEvent struct {
	Kind         PadEventKind
	Pad          Pad
	MediaType    string
	Encoding     string
	Capabilities string
}

// Frame is a decoded picture handed over by a sink.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Pad is a typed connection point on an element.
type Pad interface {
	Name() string
	// Caps returns the negotiated (or template) caps as a string.
	Caps() string
	// MediaType returns the "media" field of RTP caps ("video", "audio")
	// or the caps structure name for raw pads.
	MediaType() string
	// Encoding returns the RTP encoding-name, empty when not RTP.
	Encoding() string
	Link(sink Pad) error
	// Unlink detaches the pad from sink. Unlinking pads that are not linked
	// together is a no-op.
	Unlink(sink Pad) error
	IsLinked() bool
}

// Element is a processing stage.
type Element interface {
	Name() string
	Factory() string
	Set(property string, value any) error
	StaticPad(name string) (Pad, error)
	SetState(state State) error
	SyncStateWithParent() error
}

// Source is an element exposing dynamic pads.
type Source interface {
	Element
	// WatchPads registers pad-added and pad-removed handlers. The handlers run
	// on an engine-owned thread. The returned function disconnects them.
	WatchPads(added, removed func(Pad)) (unwatch func(), err error)
}

// Sink is the terminal element handing decoded frames to the application.
type Sink interface {
	Element
	// OnFrame registers the frame handler. It runs synchronously on the
	// engine's streaming thread.
	OnFrame(handler func(Frame))
}

// Bus carries lifecycle and error notifications out of a pipeline.
type Bus interface {
	// Pop waits up to timeout for the next message.
	Pop(timeout time.Duration) (Message, bool)
}

// Pipeline is the top-level container.
type Pipeline interface {
	Name() string
	Add(elements ...Element) error
	Remove(elements ...Element) error
	// Link links the elements' static pads in order.
	Link(elements ...Element) error
	SetState(state State) error
	Bus() Bus
	// Shutdown posts a MessageShutdown on the pipeline's bus.
	Shutdown()
}

// Factory creates pipelines and elements.
type Factory interface {
	Has(factory string) bool
	NewPipeline(name string) (Pipeline, error)
	NewElement(factory, name string) (Element, error)
	NewCapsFilter(name, caps string) (Element, error)
	NewSource(factory, name string) (Source, error)
	NewSink(name string) (Sink, error)
}

// Native is implemented by engine objects that can expose their underlying
// native handle (for example a *GstElement) to cgo collaborators.
type Native interface {
	NativePointer() uintptr
}
