package streamtexture

import "context"

// TexturePlayer is the contract the host surface depends on.
//
// Implementations must guarantee:
//   - Start returns once the pipeline is Playing, or with a synchronous
//     ErrConfig or ErrContext error and the pipeline back in Null
//   - exactly one terminal result per Start, returned by Stop and Wait
//   - no goroutine started by Start outlives Stop or Wait
//   - Stop is idempotent and safe to call concurrently with the run ending
//   - State, Stats and Warnings are safe from any goroutine
type TexturePlayer interface {
	// Start builds the source and moves the pipeline to Playing. The decode
	// chain is attached later, when the stream reports its video pad.
	Start(ctx context.Context) error

	// Stop requests teardown and blocks until the bus loop has exited. It
	// returns nil after a clean end-of-stream or stop, or the run's
	// *ErrorRecord.
	Stop() error

	// Wait blocks until the run ends on its own and returns its result.
	Wait() error

	// Done is closed when the run ends.
	Done() <-chan struct{}

	State() PipelineState
	Stats() Stats

	// Warnings lists non-fatal ErrPlugin and ErrLink records.
	Warnings() []error
}

var _ TexturePlayer = (*Controller)(nil)
