//go:build cgo

// Package gstengine implements internal/engine on top of GStreamer through
// github.com/tinyzimmer/go-gst.
package gstengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

var initOnce sync.Once

// Init initializes GStreamer once per process.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
		slog.Debug("gstengine: gstreamer initialized")
	})
}

// Factory is the GStreamer engine.Factory.
type Factory struct{}

// New initializes GStreamer and returns a factory.
func New() *Factory {
	Init()
	return &Factory{}
}

var _ engine.Factory = (*Factory)(nil)

func (f *Factory) Has(factory string) bool {
	return gst.Find(factory) != nil
}

func (f *Factory) NewPipeline(name string) (engine.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("gstengine: failed to create pipeline: %w", err)
	}
	return &pipeline{p: p}, nil
}

func (f *Factory) newElement(factory, name string) (*gst.Element, error) {
	if !f.Has(factory) {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoFactory, factory)
	}
	var (
		el  *gst.Element
		err error
	)
	if name == "" {
		el, err = gst.NewElement(factory)
	} else {
		el, err = gst.NewElementWithName(factory, name)
	}
	if err != nil {
		return nil, fmt.Errorf("gstengine: failed to create %s: %w", factory, err)
	}
	return el, nil
}

func (f *Factory) NewElement(factory, name string) (engine.Element, error) {
	el, err := f.newElement(factory, name)
	if err != nil {
		return nil, err
	}
	return &element{el: el, factory: factory}, nil
}

func (f *Factory) NewCapsFilter(name, caps string) (engine.Element, error) {
	el, err := f.newElement("capsfilter", name)
	if err != nil {
		return nil, err
	}
	if err := el.SetProperty("caps", gst.NewCapsFromString(caps)); err != nil {
		return nil, fmt.Errorf("gstengine: failed to set caps %q: %w", caps, err)
	}
	return &element{el: el, factory: "capsfilter"}, nil
}

func (f *Factory) NewSource(factory, name string) (engine.Source, error) {
	el, err := f.newElement(factory, name)
	if err != nil {
		return nil, err
	}
	return &source{element: element{el: el, factory: factory}}, nil
}

func (f *Factory) NewSink(name string) (engine.Sink, error) {
	s, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstengine: failed to create appsink: %w", err)
	}
	if name != "" {
		if err := s.SetProperty("name", name); err != nil {
			return nil, fmt.Errorf("gstengine: failed to name appsink: %w", err)
		}
	}
	return &sink{element: element{el: s.Element, factory: "appsink"}, app: s}, nil
}
