//go:build !cgo

package glbridge

import "fmt"

// GstWrapper is unavailable without cgo; every Wrap fails.
type GstWrapper struct{}

// NewGstWrapper returns a wrapper whose Wrap always fails with ErrContext.
func NewGstWrapper() *GstWrapper { return &GstWrapper{} }

func (GstWrapper) Wrap(h Handle) (Native, error) {
	return nil, fmt.Errorf("%w: GL context wrapping requires cgo", ErrContext)
}
