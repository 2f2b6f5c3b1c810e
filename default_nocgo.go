//go:build !cgo

package streamtexture

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// errNoEngine is returned by New when no engine was supplied and the
// GStreamer engine was compiled out.
var errNoEngine = errors.New("stream-texture: built without cgo, GStreamer engine unavailable")

func defaultFactory() (engine.Factory, error) {
	return nil, errNoEngine
}
