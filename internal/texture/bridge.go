// Package texture forwards decoded RGBA frames into a host-owned texture
// through an external consumer function.
package texture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/metrics"
)

// Target is a host-owned texture with fixed dimensions. The pointer is
// borrowed from the host and never dereferenced here.
type Target struct {
	Pointer uintptr
	Width   uint
	Height  uint
}

// Consumer receives one frame for the texture at texture.
type Consumer func(texture uintptr, data []byte, width, height, stride int)

// Observer is notified of every delivery outcome.
type Observer interface {
	FrameDelivered()
	FrameDropped(reason string)
}

// Stats are exact per-bridge counts.
type Stats struct {
	Delivered          uint64
	DroppedDimensions  uint64
	DroppedNoConsumer  uint64
	DroppedNullTexture uint64
}

// Dropped sums every drop reason.
func (s Stats) Dropped() uint64 {
	return s.DroppedDimensions + s.DroppedNoConsumer + s.DroppedNullTexture
}

// Bridge filters frames against its Target and hands the rest to the
// consumer. Deliver runs on the engine's streaming thread.
type Bridge struct {
	target   Target
	consumer Consumer
	degraded error
	observer Observer

	delivered   atomic.Uint64
	dimensions  atomic.Uint64
	noConsumer  atomic.Uint64
	nullTexture atomic.Uint64

	cadence      *cadence.Window
	mismatchOnce sync.Once
}

// NewBridge creates a bridge. A nil consumer or non-nil pluginErr puts the
// bridge in degraded mode for its whole lifetime: every frame is dropped.
// observer may be nil.
func NewBridge(target Target, consumer Consumer, pluginErr error, observer Observer) *Bridge {
	b := &Bridge{
		target:   target,
		consumer: consumer,
		observer: observer,
		cadence:  cadence.NewWindow(cadence.DefaultWindow),
	}
	if pluginErr != nil || consumer == nil {
		b.consumer = nil
		b.degraded = pluginErr
		slog.Warn("texture: no frame consumer, delivery disabled", "error", pluginErr)
	}
	if target.Pointer == 0 {
		slog.Warn("texture: null texture target, delivery disabled")
	}
	return b
}

// Degraded returns the plugin error the bridge was built with, if any.
func (b *Bridge) Degraded() error { return b.degraded }

// Target returns the configured target.
func (b *Bridge) Target() Target { return b.target }

// Deliver forwards f to the consumer when its dimensions match the target.
// It never blocks beyond the consumer call itself.
func (b *Bridge) Deliver(f engine.Frame) {
	if f.Width != int(b.target.Width) || f.Height != int(b.target.Height) {
		b.dimensions.Add(1)
		b.mismatchOnce.Do(func() {
			slog.Debug("texture: dropping frames with mismatched dimensions",
				"frame", [2]int{f.Width, f.Height},
				"target", [2]uint{b.target.Width, b.target.Height},
			)
		})
		b.dropped(metrics.ReasonDimensionMismatch)
		return
	}
	if b.consumer == nil {
		b.noConsumer.Add(1)
		b.dropped(metrics.ReasonNoConsumer)
		return
	}
	if b.target.Pointer == 0 {
		b.nullTexture.Add(1)
		b.dropped(metrics.ReasonNullTexture)
		return
	}

	b.consumer(b.target.Pointer, f.Data, f.Width, f.Height, 0)
	b.delivered.Add(1)
	b.cadence.Add(time.Now())
	if b.observer != nil {
		b.observer.FrameDelivered()
	}
}

func (b *Bridge) dropped(reason string) {
	if b.observer != nil {
		b.observer.FrameDropped(reason)
	}
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Delivered:          b.delivered.Load(),
		DroppedDimensions:  b.dimensions.Load(),
		DroppedNoConsumer:  b.noConsumer.Load(),
		DroppedNullTexture: b.nullTexture.Load(),
	}
}

// Cadence returns rate and jitter statistics over the most recent deliveries.
func (b *Bridge) Cadence() cadence.Stats { return b.cadence.Stats() }
