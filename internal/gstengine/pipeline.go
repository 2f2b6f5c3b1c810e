//go:build cgo

package gstengine

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// shutdownStructure names the application message posted by Shutdown.
const shutdownStructure = "stream-texture/shutdown"

type pipeline struct {
	p *gst.Pipeline
}

func (p *pipeline) Name() string { return p.p.GetName() }

// NativePointer returns the *GstPipeline.
func (p *pipeline) NativePointer() uintptr { return uintptr(p.p.Unsafe()) }

func unwrap(elements []engine.Element) ([]*gst.Element, error) {
	out := make([]*gst.Element, 0, len(elements))
	for _, e := range elements {
		switch v := e.(type) {
		case *element:
			out = append(out, v.el)
		case *source:
			out = append(out, v.el)
		case *sink:
			out = append(out, v.el)
		default:
			return nil, fmt.Errorf("gstengine: foreign element %T", e)
		}
	}
	return out, nil
}

func (p *pipeline) Add(elements ...engine.Element) error {
	els, err := unwrap(elements)
	if err != nil {
		return err
	}
	if err := p.p.AddMany(els...); err != nil {
		return fmt.Errorf("gstengine: add to %s: %w", p.Name(), err)
	}
	return nil
}

func (p *pipeline) Remove(elements ...engine.Element) error {
	els, err := unwrap(elements)
	if err != nil {
		return err
	}
	if err := p.p.RemoveMany(els...); err != nil {
		return fmt.Errorf("gstengine: remove from %s: %w", p.Name(), err)
	}
	return nil
}

func (p *pipeline) Link(elements ...engine.Element) error {
	els, err := unwrap(elements)
	if err != nil {
		return err
	}
	if err := gst.ElementLinkMany(els...); err != nil {
		return fmt.Errorf("gstengine: link chain: %w", err)
	}
	return nil
}

func (p *pipeline) SetState(state engine.State) error {
	if err := p.p.SetState(states[state]); err != nil {
		return fmt.Errorf("gstengine: %s to %s: %w", p.Name(), state, err)
	}
	return nil
}

func (p *pipeline) Bus() engine.Bus {
	return &bus{b: p.p.GetPipelineBus()}
}

func (p *pipeline) Shutdown() {
	msg := gst.NewApplicationMessage(p.p.Element, gst.NewStructure(shutdownStructure))
	p.p.GetPipelineBus().Post(msg)
}

type bus struct {
	b *gst.Bus
}

func (b *bus) Pop(timeout time.Duration) (engine.Message, bool) {
	msg := b.b.TimedPop(timeout)
	if msg == nil {
		return engine.Message{}, false
	}
	return translate(msg), true
}

func translate(msg *gst.Message) engine.Message {
	out := engine.Message{Source: msg.Source()}
	switch msg.Type() {
	case gst.MessageEOS:
		out.Type = engine.MessageEOS
	case gst.MessageError:
		out.Type = engine.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Text, out.Debug = gerr.Error(), gerr.DebugString()
		}
	case gst.MessageWarning:
		out.Type = engine.MessageWarning
		if gerr := msg.ParseWarning(); gerr != nil {
			out.Text, out.Debug = gerr.Error(), gerr.DebugString()
		}
	case gst.MessageStateChanged:
		out.Type = engine.MessageStateChanged
		old, cur := msg.ParseStateChanged()
		out.OldState, out.NewState = fromGstState(old), fromGstState(cur)
	case gst.MessageApplication:
		if st := msg.GetStructure(); st != nil && st.Name() == shutdownStructure {
			out.Type = engine.MessageShutdown
		}
	}
	return out
}
