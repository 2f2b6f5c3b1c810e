//go:build cgo

package streamtexture

import (
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/gstengine"
)

func defaultFactory() (engine.Factory, error) {
	return gstengine.New(), nil
}
