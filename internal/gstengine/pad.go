//go:build cgo

package gstengine

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

type pad struct {
	p *gst.Pad
}

func (p *pad) Name() string { return p.p.GetName() }

func (p *pad) caps() *gst.Caps {
	if c := p.p.GetCurrentCaps(); c != nil {
		return c
	}
	return p.p.QueryCaps(nil)
}

func (p *pad) Caps() string {
	c := p.caps()
	if c == nil {
		return ""
	}
	return c.String()
}

func (p *pad) field(name string) string {
	c := p.caps()
	if c == nil || c.GetSize() == 0 {
		return ""
	}
	v, err := c.GetStructureAt(0).GetValue(name)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (p *pad) MediaType() string {
	if m := p.field("media"); m != "" {
		return m
	}
	c := p.caps()
	if c == nil || c.GetSize() == 0 {
		return ""
	}
	return c.GetStructureAt(0).Name()
}

func (p *pad) Encoding() string { return p.field("encoding-name") }

func (p *pad) Link(sink engine.Pad) error {
	other, ok := sink.(*pad)
	if !ok {
		return fmt.Errorf("gstengine: cannot link to foreign pad %T", sink)
	}
	if ret := p.p.Link(other.p); ret != gst.PadLinkOK {
		return fmt.Errorf("gstengine: link %s -> %s: %v", p.Name(), other.Name(), ret)
	}
	return nil
}

func (p *pad) Unlink(sink engine.Pad) error {
	other, ok := sink.(*pad)
	if !ok {
		return fmt.Errorf("gstengine: cannot unlink foreign pad %T", sink)
	}
	// gst_pad_unlink returns false when the pads were not linked together.
	p.p.Unlink(other.p)
	return nil
}

func (p *pad) IsLinked() bool { return p.p.IsLinked() }
