package streamtexture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/glbridge"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/plugin"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/source"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/texture"
)

// pollInterval bounds how long the bus loop blocks before rechecking its
// context.
const pollInterval = 50 * time.Millisecond

// Resolver looks up stream hosts when Config.ResolveHost is set.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// FrameConsumer receives RGBA frames for a host texture. It replaces the
// renderer plugin when set with WithConsumer.
type FrameConsumer func(texture uintptr, data []byte, width, height, stride int)

// Option customizes a Controller.
type Option func(*options)

type options struct {
	factory  engine.Factory
	wrapper  glbridge.Wrapper
	consumer FrameConsumer
	resolver Resolver
}

// WithConsumer delivers frames to fn instead of the renderer plugin.
func WithConsumer(fn FrameConsumer) Option {
	return func(o *options) { o.consumer = fn }
}

// WithResolver sets the resolver used when Config.ResolveHost is set.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

func withFactory(f engine.Factory) Option {
	return func(o *options) { o.factory = f }
}

func withWrapper(w glbridge.Wrapper) Option {
	return func(o *options) { o.wrapper = w }
}

// Controller plays one RTSP stream into a host texture. It owns the pipeline
// state and the bus loop; Start and Stop may be called from any goroutine.
type Controller struct {
	cfg     Config
	opts    options
	plan    graph.Plan
	bridge  *texture.Bridge
	metrics metrics.Stream

	// pluginWarning is the PluginError recorded at construction, if any.
	pluginWarning *ErrorRecord

	state stateMachine

	mu  sync.Mutex
	run *run
}

// run is the state of one Start.
type run struct {
	id       string
	pipeline engine.Pipeline
	source   *source.Source
	builder  *graph.Builder
	gl       *glbridge.Context
	errs     *errorChannel

	group    errgroup.Group
	done     chan struct{}
	stopping atomic.Bool

	started time.Time
	ended   atomic.Int64
}

// New validates cfg, checks that every processing stage is installed and
// resolves the renderer plugin. A missing plugin is not an error: the
// controller runs with frame delivery disabled and Warnings reports it.
func New(cfg Config, opts ...Option) (*Controller, error) {
	c := &Controller{cfg: cfg}
	for _, opt := range opts {
		opt(&c.opts)
	}
	if c.cfg.Name == "" {
		c.cfg.Name = "default"
	}
	if c.opts.factory == nil {
		f, err := defaultFactory()
		if err != nil {
			return nil, newRecord(KindConfig, "engine", err)
		}
		c.opts.factory = f
	}
	if c.opts.wrapper == nil {
		c.opts.wrapper = glbridge.NewGstWrapper()
	}
	if c.opts.resolver == nil {
		c.opts.resolver = net.DefaultResolver
	}
	c.metrics = metrics.ForStream(c.cfg.Name)

	if err := source.ValidateURI(cfg.Stream.URI); err != nil {
		return nil, newRecord(KindConfig, "source", err)
	}
	if cfg.Texture.Width == 0 || cfg.Texture.Height == 0 {
		return nil, newRecord(KindConfig, "texture",
			fmt.Errorf("texture target must have positive dimensions, got %dx%d", cfg.Texture.Width, cfg.Texture.Height))
	}

	plan, err := graph.PlanChain(c.opts.factory, graph.Options{
		Acceleration: cfg.Acceleration,
		Width:        cfg.Texture.Width,
		Height:       cfg.Texture.Height,
		GL:           cfg.GLContext.Pointer != 0,
	})
	if err != nil {
		return nil, newRecord(KindConfig, "graph", err)
	}
	missing := graph.Missing(c.opts.factory, plan)
	if !c.opts.factory.Has("rtspsrc") {
		missing = append([]string{"rtspsrc"}, missing...)
	}
	if len(missing) > 0 {
		return nil, newRecord(KindConfig, "graph",
			fmt.Errorf("%w: %s", engine.ErrNoFactory, strings.Join(missing, ", ")))
	}
	c.plan = plan

	consumer, pluginErr := c.resolveConsumer()
	if pluginErr != nil {
		c.pluginWarning = newRecord(KindPlugin, "plugin", pluginErr)
	}
	c.bridge = texture.NewBridge(
		texture.Target{Pointer: cfg.Texture.Pointer, Width: cfg.Texture.Width, Height: cfg.Texture.Height},
		consumer, pluginErr, c.metrics,
	)

	slog.Info("stream-texture: controller created",
		"stream", c.cfg.Name,
		"uri", source.Redact(cfg.Stream.URI),
		"texture", cfg.Texture.String(),
		"decoder", plan.Decoder(),
		"gl_upload", plan.GLSink,
		"degraded", pluginErr != nil,
	)
	return c, nil
}

func (c *Controller) resolveConsumer() (texture.Consumer, error) {
	if c.opts.consumer != nil {
		return texture.Consumer(c.opts.consumer), nil
	}
	if c.cfg.PluginPath != "" {
		plugin.SetPath(c.cfg.PluginPath)
	}
	fn, err := plugin.Resolve()
	if err != nil {
		return nil, err
	}
	return texture.Consumer(fn), nil
}

// Start moves the pipeline to Playing and starts the bus loop. It returns once
// the pipeline is Playing or with the error that prevented it; in the latter
// case the pipeline is back in Null. Cancelling ctx stops the run like Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.run; r != nil {
		select {
		case <-r.done:
		default:
			return fmt.Errorf("stream-texture: %s already started", c.cfg.Name)
		}
	}

	if c.cfg.ResolveHost {
		if err := source.Resolve(ctx, c.opts.resolver, c.cfg.Stream.URI); err != nil {
			return newRecord(KindConfig, "source", err)
		}
	}

	r := &run{
		id:      uuid.New().String(),
		errs:    newErrorChannel(),
		done:    make(chan struct{}),
		started: time.Now(),
	}
	log := slog.With("stream", c.cfg.Name, "run_id", r.id)

	// Synchronous failures are returned, not counted as a run's terminal error.
	var gl graph.GLContext
	if h := c.cfg.GLContext; h.Pointer != 0 {
		wrapped, err := glbridge.Wrap(glbridge.Handle{Pointer: h.Pointer, Platform: h.Platform, API: h.API}, c.opts.wrapper)
		if err != nil {
			return newRecord(KindContext, "glbridge", err)
		}
		r.gl, gl = wrapped, wrapped
	}

	p, err := c.opts.factory.NewPipeline("stream-texture-" + c.cfg.Name)
	if err != nil {
		r.release()
		return newRecord(KindConfig, "engine", err)
	}
	r.pipeline = p

	r.builder = graph.New(graph.Config{
		Factory:  c.opts.factory,
		Pipeline: p,
		Plan:     c.plan,
		GL:       gl,
		Deliver:  c.bridge.Deliver,
		Warn: func(err error) {
			r.errs.warn(newRecord(KindLink, "graph", err))
		},
		Fatal: func(err error) {
			if r.errs.fail(newRecord(KindContext, "glbridge", err)) {
				c.fail()
				p.Shutdown()
			}
		},
		Built: c.metrics.ChainBuild,
	})

	r.source, err = source.Start(c.opts.factory, p, source.Descriptor{
		URI:        c.cfg.Stream.URI,
		LatencyMS:  c.cfg.Stream.LatencyBudgetMS,
		KeepAlive:  c.cfg.Stream.KeepAlive,
		Transport:  source.Transport(c.cfg.Stream.Transport),
		TCPTimeout: c.cfg.Stream.TCPTimeout,
	}, r.builder.HandlePadEvent)
	if err != nil {
		r.release()
		return newRecord(KindConfig, "source", err)
	}

	steps := []struct {
		engine engine.State
		state  PipelineState
	}{
		{engine.StateReady, StateReady},
		{engine.StatePaused, StatePaused},
		{engine.StatePlaying, StatePlaying},
	}
	abort := func(err error) error {
		if nullErr := p.SetState(engine.StateNull); nullErr != nil {
			log.Warn("stream-texture: failed to return pipeline to null", "error", nullErr)
		}
		c.reset()
		r.release()
		// A pad callback may already have failed the run.
		if rec := r.errs.take(); rec != nil {
			return rec
		}
		return err
	}
	for _, step := range steps {
		if err := p.SetState(step.engine); err != nil {
			return abort(newRecord(KindConfig, "engine", fmt.Errorf("set %s: %w", step.engine, err)))
		}
		if err := c.state.move(step.state); err != nil {
			return abort(newRecord(KindRuntime, "engine", err))
		}
	}

	c.run = r
	r.group.Go(func() error { return c.loop(ctx, r) })

	log.Info("stream-texture: playing",
		"uri", source.Redact(c.cfg.Stream.URI),
		"latency_ms", c.cfg.Stream.LatencyBudgetMS,
	)
	return nil
}

// loop consumes bus messages until end-of-stream, an engine error, a
// shutdown request or ctx cancellation, then tears the run down.
func (c *Controller) loop(ctx context.Context, r *run) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	log := slog.With("stream", c.cfg.Name, "run_id", r.id)
	bus := r.pipeline.Bus()
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream-texture: context cancelled")
			r.stopping.Store(true)
			return c.finish(r)
		default:
		}

		msg, ok := bus.Pop(pollInterval)
		if !ok {
			continue
		}

		switch msg.Type {
		case engine.MessageEOS:
			log.Info("stream-texture: end of stream", "uptime", time.Since(r.started))
			return c.finish(r)

		case engine.MessageError:
			rec := engineError(msg.Source, msg.Text, msg.Debug)
			log.Error("stream-texture: pipeline error",
				"element", msg.Source,
				"error", msg.Text,
				"debug", msg.Debug,
				"category", rec.Category.String(),
			)
			if r.errs.fail(rec) {
				c.fail()
			}
			return c.finish(r)

		case engine.MessageWarning:
			log.Warn("stream-texture: pipeline warning", "element", msg.Source, "warning", msg.Text)

		case engine.MessageStateChanged:
			if msg.Source == r.pipeline.Name() {
				log.Debug("stream-texture: pipeline state changed",
					"from", msg.OldState.String(),
					"to", msg.NewState.String(),
				)
			}

		case engine.MessageShutdown:
			log.Debug("stream-texture: shutdown requested")
			return c.finish(r)
		}
	}
}

// fail moves the controller to Error. It is a no-op when the pipeline is
// already Null.
func (c *Controller) fail() {
	if c.state.get() == StateNull {
		return
	}
	if err := c.state.move(StateError); err != nil {
		slog.Debug("stream-texture: error state", "error", err)
	}
}

// reset forces the state machine back to Null.
func (c *Controller) reset() {
	if err := c.state.move(StateNull); err != nil {
		slog.Warn("stream-texture: reset state", "error", err)
	}
}

// finish returns the pipeline to Null and produces the run's single result.
func (c *Controller) finish(r *run) error {
	if err := r.pipeline.SetState(engine.StateNull); err != nil {
		slog.Warn("stream-texture: failed to set pipeline to null", "run_id", r.id, "error", err)
	}
	c.reset()
	r.release()
	r.ended.Store(time.Now().UnixNano())

	rec := r.errs.take()
	if rec == nil {
		slog.Info("stream-texture: run finished", "stream", c.cfg.Name, "run_id", r.id)
		return nil
	}
	c.metrics.TerminalError(rec.Kind.String())
	slog.Info("stream-texture: run failed", "stream", c.cfg.Name, "run_id", r.id, "error", rec)
	return rec
}

// release closes the run's collaborators. Safe on a partially started run.
func (r *run) release() {
	if r.builder != nil {
		r.builder.Close()
	}
	if r.source != nil {
		r.source.Close()
	}
	if r.gl != nil {
		r.gl.Release()
	}
}

func (c *Controller) current() *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

// Stop asks the bus loop to tear the pipeline down, waits for it and returns
// the run's terminal result. Teardown is cooperative, so Stop returns after a
// short bounded delay rather than immediately. Stop is idempotent and
// returns nil if Start never succeeded.
func (c *Controller) Stop() error {
	r := c.current()
	if r == nil {
		return nil
	}
	if r.stopping.CompareAndSwap(false, true) {
		select {
		case <-r.done:
		default:
			slog.Info("stream-texture: stopping", "stream", c.cfg.Name, "run_id", r.id)
			r.pipeline.Shutdown()
		}
	}
	return r.group.Wait()
}

// Wait blocks until the current run ends and returns its result.
func (c *Controller) Wait() error {
	r := c.current()
	if r == nil {
		return nil
	}
	return r.group.Wait()
}

// Done is closed when the current run ends.
func (c *Controller) Done() <-chan struct{} {
	if r := c.current(); r != nil {
		return r.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Run starts the controller and blocks until the run ends or ctx is
// cancelled. Cancellation stops the run and yields its result.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	select {
	case <-c.Done():
		return c.Wait()
	case <-ctx.Done():
		return c.Stop()
	}
}

// State returns the pipeline state.
func (c *Controller) State() PipelineState { return c.state.get() }

// Warnings returns the non-fatal errors recorded so far: the PluginError from
// construction, then the current run's LinkErrors.
func (c *Controller) Warnings() []error {
	var out []error
	if c.pluginWarning != nil {
		out = append(out, c.pluginWarning)
	}
	if r := c.current(); r != nil {
		out = append(out, r.errs.list()...)
	}
	return out
}

// Stats returns a diagnostics snapshot.
func (c *Controller) Stats() Stats {
	bs := c.bridge.Stats()
	cad := c.bridge.Cadence()
	s := Stats{
		State:              c.State(),
		FramesDelivered:    bs.Delivered,
		FramesDropped:      bs.Dropped(),
		DroppedDimensions:  bs.DroppedDimensions,
		DroppedNoConsumer:  bs.DroppedNoConsumer,
		DroppedNullTexture: bs.DroppedNullTexture,
		Decoder:            c.plan.Decoder(),
		Degraded:           c.pluginWarning != nil || c.bridge.Degraded() != nil,
		Warnings:           len(c.Warnings()),
		RecentFPS:          cad.FPSMean,
		FPSStdDev:          cad.FPSStdDev,
		JitterMean:         cad.JitterMean,
		JitterMax:          cad.JitterMax,
		Stable:             cad.Stable,
	}

	r := c.current()
	if r == nil {
		return s
	}
	s.RunID = r.id
	s.PadEvents = r.builder.PadEvents()
	s.ChainBuilds = r.builder.Builds()
	end := time.Now()
	if ns := r.ended.Load(); ns != 0 {
		end = time.Unix(0, ns)
	}
	s.Uptime = end.Sub(r.started)
	if secs := s.Uptime.Seconds(); secs > 0 {
		s.FPS = float64(bs.Delivered) / secs
	}
	return s
}

// IsKind reports whether err is an ErrorRecord of kind.
func IsKind(err error, kind ErrorKind) bool {
	var rec *ErrorRecord
	return errors.As(err, &rec) && rec.Kind == kind
}
