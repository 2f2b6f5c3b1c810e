// Package source owns the network ingestion element and turns its dynamic
// pads into engine.PadEvent notifications.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// ErrConfig marks a descriptor the source cannot open.
var ErrConfig = errors.New("source: invalid stream configuration")

// ElementName is the name given to the ingestion element in the pipeline.
const ElementName = "source"

// Transport restricts the lower transport negotiated with the server.
type Transport string

const (
	TransportAny Transport = ""
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// rtspsrc "protocols" flags.
func (t Transport) flags() (int, bool) {
	switch t {
	case TransportTCP:
		return 4, true
	case TransportUDP:
		return 1 | 2, true
	}
	return 0, false
}

// Descriptor configures the ingestion element.
type Descriptor struct {
	URI        string
	LatencyMS  uint
	KeepAlive  bool
	Transport  Transport
	TCPTimeout time.Duration
}

// Handler receives pad events on the engine's pad-discovery thread.
type Handler func(engine.PadEvent)

var schemes = map[string]bool{"rtsp": true, "rtsps": true, "rtspt": true, "rtsph": true}

// ValidateURI checks that uri is an absolute RTSP URL with a host.
func ValidateURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: uri is required", ErrConfig)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if !schemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("%w: unsupported scheme %q", ErrConfig, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: uri has no host", ErrConfig)
	}
	return nil
}

// Resolver is the subset of *net.Resolver used by Resolve.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Resolve checks that the URI host resolves. IP literals are accepted as is.
func Resolve(ctx context.Context, r Resolver, uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := r.LookupHost(ctx, host); err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %v", ErrConfig, host, err)
	}
	return nil
}

type property struct {
	name  string
	value any
}

// Source is the started ingestion element.
type Source struct {
	el      engine.Source
	desc    Descriptor
	unwatch func()
}

// Start creates the ingestion element, adds it to the pipeline and forwards
// its pad events to h. The element follows the pipeline's state; Start does
// not change it.
func Start(f engine.Factory, p engine.Pipeline, desc Descriptor, h Handler) (*Source, error) {
	if err := ValidateURI(desc.URI); err != nil {
		return nil, err
	}

	el, err := f.NewSource("rtspsrc", ElementName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	props := []property{
		{"location", desc.URI},
		{"latency", desc.LatencyMS},
		{"do-rtsp-keep-alive", desc.KeepAlive},
	}
	if flags, ok := desc.Transport.flags(); ok {
		props = append(props, property{"protocols", flags})
	}
	if desc.TCPTimeout > 0 {
		props = append(props, property{"tcp-timeout", uint64(desc.TCPTimeout / time.Microsecond)})
	}
	for _, prop := range props {
		if err := el.Set(prop.name, prop.value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	if err := p.Add(el); err != nil {
		return nil, fmt.Errorf("source: add to pipeline: %w", err)
	}

	s := &Source{el: el, desc: desc}
	s.unwatch, err = el.WatchPads(
		func(pad engine.Pad) { h(event(engine.PadAdded, pad)) },
		func(pad engine.Pad) { h(event(engine.PadRemoved, pad)) },
	)
	if err != nil {
		_ = p.Remove(el)
		return nil, fmt.Errorf("source: watch pads: %w", err)
	}

	slog.Debug("source: rtspsrc ready",
		"uri", Redact(desc.URI),
		"latency_ms", desc.LatencyMS,
		"keepalive", desc.KeepAlive,
		"transport", string(desc.Transport),
	)
	return s, nil
}

func event(kind engine.PadEventKind, pad engine.Pad) engine.PadEvent {
	ev := engine.PadEvent{Kind: kind, Pad: pad}
	if kind == engine.PadAdded {
		ev.MediaType = pad.MediaType()
		ev.Encoding = pad.Encoding()
		ev.Capabilities = pad.Caps()
	}
	return ev
}

// Element returns the ingestion element.
func (s *Source) Element() engine.Source { return s.el }

// Close disconnects the pad handlers. Pad events raised afterwards are lost.
func (s *Source) Close() {
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

// Redact hides URL credentials in log output.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
