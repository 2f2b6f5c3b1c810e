//go:build cgo

package gstengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

var states = map[engine.State]gst.State{
	engine.StateNull:    gst.StateNull,
	engine.StateReady:   gst.StateReady,
	engine.StatePaused:  gst.StatePaused,
	engine.StatePlaying: gst.StatePlaying,
}

func fromGstState(s gst.State) engine.State {
	for k, v := range states {
		if v == s {
			return k
		}
	}
	return engine.StateNull
}

type element struct {
	el      *gst.Element
	factory string
}

func (e *element) Name() string    { return e.el.GetName() }
func (e *element) Factory() string { return e.factory }

// NativePointer returns the *GstElement.
func (e *element) NativePointer() uintptr { return uintptr(e.el.Unsafe()) }

func (e *element) Set(property string, value any) error {
	// Element-valued properties (glsinkbin "sink") take the wrapped object.
	switch v := value.(type) {
	case *element:
		value = v.el
	case *sink:
		value = v.el
	}
	if err := e.el.SetProperty(property, value); err != nil {
		return fmt.Errorf("gstengine: %s.%s: %w", e.Name(), property, err)
	}
	return nil
}

func (e *element) StaticPad(name string) (engine.Pad, error) {
	p := e.el.GetStaticPad(name)
	if p == nil {
		return nil, fmt.Errorf("gstengine: %s has no static pad %q", e.Name(), name)
	}
	return &pad{p: p}, nil
}

func (e *element) SetState(state engine.State) error {
	if err := e.el.SetState(states[state]); err != nil {
		return fmt.Errorf("gstengine: %s to %s: %w", e.Name(), state, err)
	}
	return nil
}

func (e *element) SyncStateWithParent() error {
	if !e.el.SyncStateWithParent() {
		return fmt.Errorf("gstengine: %s failed to sync state with parent", e.Name())
	}
	return nil
}

// source wraps an element with dynamic pads (rtspsrc).
type source struct {
	element
}

func (s *source) WatchPads(added, removed func(engine.Pad)) (func(), error) {
	hAdded, err := s.el.Connect("pad-added", func(_ *gst.Element, p *gst.Pad) {
		added(&pad{p: p})
	})
	if err != nil {
		return nil, fmt.Errorf("gstengine: connect pad-added: %w", err)
	}
	hRemoved, err := s.el.Connect("pad-removed", func(_ *gst.Element, p *gst.Pad) {
		removed(&pad{p: p})
	})
	if err != nil {
		s.el.HandlerDisconnect(hAdded)
		return nil, fmt.Errorf("gstengine: connect pad-removed: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, h := range []glib.SignalHandle{hAdded, hRemoved} {
				s.el.HandlerDisconnect(h)
			}
		})
	}, nil
}

// sink wraps an appsink.
type sink struct {
	element
	app *app.Sink
}

func (s *sink) OnFrame(handler func(engine.Frame)) {
	s.app.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(as *app.Sink) gst.FlowReturn {
			return onNewSample(as, handler)
		},
	})
}

// onNewSample pulls a sample, copies its pixels and hands the frame over.
// A bad sample is skipped rather than terminating the stream.
func onNewSample(as *app.Sink, handler func(engine.Frame)) gst.FlowReturn {
	sample := as.PullSample()
	if sample == nil {
		slog.Warn("gstengine: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstengine: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	width, height := sampleDimensions(sample)

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstengine: empty buffer received")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer once we return.
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	handler(engine.Frame{Data: frame, Width: width, Height: height})
	return gst.FlowOK
}

func sampleDimensions(sample *gst.Sample) (int, int) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	st := caps.GetStructureAt(0)
	return intField(st, "width"), intField(st, "height")
}

func intField(st *gst.Structure, name string) int {
	v, err := st.GetValue(name)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case uint:
		return int(n)
	case uint32:
		return int(n)
	}
	return 0
}
