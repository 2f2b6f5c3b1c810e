package streamtexture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine/enginetest"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/glbridge"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/plugin"
)

type consumerCall struct {
	texture       uintptr
	size          int
	width, height int
	stride        int
}

type consumer struct {
	mu    sync.Mutex
	calls []consumerCall
}

func (c *consumer) fn(texture uintptr, data []byte, width, height, stride int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, consumerCall{texture, len(data), width, height, stride})
}

func (c *consumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeNative struct {
	mu            sync.Mutex
	activateErr   error
	activations   int
	deactivations int
	shared        int
	released      int
}

func (n *fakeNative) Activate(active bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if active && n.activateErr != nil {
		return n.activateErr
	}
	if active {
		n.activations++
	} else {
		n.deactivations++
	}
	return nil
}

func (n *fakeNative) Share(uintptr) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shared++
	return nil
}

func (n *fakeNative) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released++
}

type fakeWrapper struct {
	native *fakeNative
	err    error
}

func (w *fakeWrapper) Wrap(glbridge.Handle) (glbridge.Native, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.native, nil
}

type fixture struct {
	ctrl     *Controller
	factory  *enginetest.Factory
	consumer *consumer
	native   *fakeNative
}

func testConfig(t *testing.T) Config {
	return Config{
		Name: t.Name(),
		Stream: StreamDescriptor{
			URI:             "rtsp://host/stream",
			LatencyBudgetMS: 100,
		},
		GLContext: GLContextHandle{Pointer: 0xbeef, Platform: PlatformEGL, API: APIGLES2},
		Texture:   TextureTarget{Pointer: 0x10, Width: 640, Height: 480},
	}
}

func newFixture(t *testing.T, mutate func(*Config, *enginetest.Factory, *fakeWrapper)) *fixture {
	t.Helper()
	fx := &fixture{
		factory:  enginetest.NewFactory(),
		consumer: &consumer{},
		native:   &fakeNative{},
	}
	fx.factory.Missing["vaapih264dec"] = true
	cfg := testConfig(t)
	wrapper := &fakeWrapper{native: fx.native}
	if mutate != nil {
		mutate(&cfg, fx.factory, wrapper)
	}

	ctrl, err := New(cfg,
		withFactory(fx.factory),
		withWrapper(wrapper),
		WithConsumer(fx.consumer.fn),
	)
	require.NoError(t, err)
	fx.ctrl = ctrl
	return fx
}

func (fx *fixture) pipeline() *enginetest.Pipeline { return fx.factory.LastPipeline() }

func (fx *fixture) emitVideoPad(name string) *enginetest.Pad {
	pad := enginetest.NewSourcePad(name, "video", "H264")
	fx.factory.LastSource().EmitPadAdded(pad)
	return pad
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end")
	}
}

func TestController_PlayingThenEndOfStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)

	require.NoError(t, fx.ctrl.Start(context.Background()))
	assert.Equal(t, StatePlaying, fx.ctrl.State())
	assert.Equal(t, []engine.State{engine.StateReady, engine.StatePaused, engine.StatePlaying}, fx.pipeline().States())

	src := fx.factory.LastSource()
	assert.True(t, src.Watched())
	assert.Equal(t, uint(100), src.Property("latency"))

	pad := fx.emitVideoPad("recv_rtp_src_0")
	assert.True(t, pad.IsLinked())
	assert.Equal(t, 1, fx.native.activations)
	assert.Equal(t, 1, fx.native.deactivations, "deactivated on the pad thread after sharing")
	assert.Equal(t, 1, fx.native.shared)

	require.True(t, fx.factory.LastSink().Push(engine.Frame{Data: make([]byte, 640*480*4), Width: 640, Height: 480}))
	require.Equal(t, 1, fx.consumer.count())
	assert.Equal(t, consumerCall{texture: 0x10, size: 640 * 480 * 4, width: 640, height: 480}, fx.consumer.calls[0])

	fx.pipeline().Post(engine.Message{Type: engine.MessageEOS, Source: fx.pipeline().Name()})
	waitDone(t, fx.ctrl)

	assert.NoError(t, fx.ctrl.Stop())
	assert.Equal(t, StateNull, fx.ctrl.State())
	states := fx.pipeline().States()
	assert.Equal(t, engine.StateNull, states[len(states)-1])
	assert.False(t, src.Watched())
	assert.Equal(t, 1, fx.native.released)
	assert.Equal(t, 1, fx.native.deactivations, "release from the loop does not deactivate again")

	stats := fx.ctrl.Stats()
	assert.Equal(t, uint64(1), stats.FramesDelivered)
	assert.Equal(t, uint64(1), stats.ChainBuilds)
	assert.Equal(t, uint64(1), stats.PadEvents)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, "avdec_h264", stats.Decoder)
}

func TestController_EngineErrorIsSingleTerminalResult(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	before := testutil.ToFloat64(metrics.TerminalErrorsTotal.WithLabelValues(t.Name(), "runtime"))

	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.emitVideoPad("recv_rtp_src_0")

	fx.pipeline().Post(engine.Message{
		Type:   engine.MessageError,
		Source: "source",
		Text:   "Could not open resource for reading and writing.",
		Debug:  "gstrtspsrc.c(7893): Failed to connect. (Generic error)",
	})
	fx.pipeline().Post(engine.Message{Type: engine.MessageError, Source: "decoder", Text: "second failure"})
	waitDone(t, fx.ctrl)

	err := fx.ctrl.Stop()
	require.Error(t, err)
	var rec *ErrorRecord
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, "engine", rec.SourceComponent)
	assert.Equal(t, KindRuntime, rec.Kind)
	assert.Equal(t, CategoryNetwork, rec.Category)
	assert.Contains(t, rec.DebugDetail, "element source")
	assert.ErrorIs(t, err, ErrRuntime)
	assert.NotErrorIs(t, err, ErrConfig)

	assert.Equal(t, StateNull, fx.ctrl.State())
	assert.Same(t, rec, fx.ctrl.Wait(), "the same single result on every call")
	assert.Empty(t, fx.ctrl.Warnings())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.TerminalErrorsTotal.WithLabelValues(t.Name(), "runtime")))
}

func TestController_StopWhilePlayingJoinsWithinDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.emitVideoPad("recv_rtp_src_0")

	stopped := make(chan error, 1)
	go func() { stopped <- fx.ctrl.Stop() }()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, StateNull, fx.ctrl.State())
	select {
	case <-fx.ctrl.Done():
	default:
		t.Fatal("bus loop still running after Stop")
	}

	assert.NoError(t, fx.ctrl.Stop(), "Stop is idempotent")
}

func TestController_ConcurrentStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	require.NoError(t, fx.ctrl.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, fx.ctrl.Stop())
		}()
	}
	wg.Wait()

	var shutdowns int
	for {
		msg, ok := fx.pipeline().Bus().Pop(time.Millisecond)
		if !ok {
			break
		}
		if msg.Type == engine.MessageShutdown {
			shutdowns++
		}
	}
	assert.Zero(t, shutdowns, "exactly one shutdown was posted and consumed")
}

func TestController_MissingPluginDegradesDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	t.Setenv(plugin.EnvPath, "/nonexistent/libtexture_rgba_renderer_plugin.so")
	plugin.Reset()
	t.Cleanup(plugin.Reset)

	f := enginetest.NewFactory()
	f.Missing["vaapih264dec"] = true
	ctrl, err := New(testConfig(t), withFactory(f), withWrapper(&fakeWrapper{native: &fakeNative{}}))
	require.NoError(t, err)

	warnings := ctrl.Warnings()
	if len(warnings) == 0 {
		t.Skip("renderer plugin installed on this host")
	}
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], ErrPlugin)
	assert.ErrorIs(t, warnings[0], plugin.ErrUnavailable)
	assert.True(t, ctrl.Stats().Degraded)

	require.NoError(t, ctrl.Start(context.Background()))
	f.LastSource().EmitPadAdded(enginetest.NewSourcePad("v", "video", "H264"))
	for i := 0; i < 3; i++ {
		f.LastSink().Push(engine.Frame{Data: []byte{1, 2, 3, 4}, Width: 640, Height: 480})
	}
	require.NoError(t, ctrl.Stop())

	stats := ctrl.Stats()
	assert.Equal(t, uint64(3), stats.DroppedNoConsumer)
	assert.Zero(t, stats.FramesDelivered)
	assert.Len(t, ctrl.Warnings(), 1, "the plugin error is recorded once")
}

func TestController_DimensionMismatchNeverDelivers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	require.NoError(t, fx.ctrl.Start(context.Background()))
	fx.emitVideoPad("v")

	fx.factory.LastSink().Push(engine.Frame{Data: make([]byte, 320*240*4), Width: 320, Height: 240})

	assert.Zero(t, fx.consumer.count())
	assert.Equal(t, uint64(1), fx.ctrl.Stats().DroppedDimensions)
	require.NoError(t, fx.ctrl.Stop())
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config, *enginetest.Factory)
	}{
		{"bad scheme", func(c *Config, _ *enginetest.Factory) { c.Stream.URI = "http://host/stream" }},
		{"empty uri", func(c *Config, _ *enginetest.Factory) { c.Stream.URI = "" }},
		{"zero texture", func(c *Config, _ *enginetest.Factory) { c.Texture.Width = 0 }},
		{"missing parser", func(_ *Config, f *enginetest.Factory) { f.Missing["h264parse"] = true }},
		{"missing source", func(_ *Config, f *enginetest.Factory) { f.Missing["rtspsrc"] = true }},
		{"missing gl upload", func(_ *Config, f *enginetest.Factory) { f.Missing["glupload"] = true }},
		{"vaapi required", func(c *Config, f *enginetest.Factory) {
			c.Acceleration = AccelVAAPI
			f.Missing["vaapih264dec"] = true
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := enginetest.NewFactory()
			cfg := testConfig(t)
			tt.mutate(&cfg, f)

			_, err := New(cfg, withFactory(f), WithConsumer(func(uintptr, []byte, int, int, int) {}))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			assert.True(t, IsKind(err, KindConfig))
		})
	}
}

func TestNew_SystemMemoryWhenNoGLContext(t *testing.T) {
	f := enginetest.NewFactory()
	f.Missing["glupload"] = true
	f.Missing["glsinkbin"] = true
	cfg := testConfig(t)
	cfg.GLContext = GLContextHandle{}

	ctrl, err := New(cfg, withFactory(f), WithConsumer(func(uintptr, []byte, int, int, int) {}))
	require.NoError(t, err)
	assert.False(t, ctrl.plan.GLSink)
}

func TestStart_StateChangeFailureReturnsToNull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, func(_ *Config, f *enginetest.Factory, _ *fakeWrapper) {
		f.FailState[engine.StatePlaying] = errors.New("could not preroll")
	})

	err := fx.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, StateNull, fx.ctrl.State())
	states := fx.pipeline().States()
	assert.Equal(t, engine.StateNull, states[len(states)-1])
	assert.False(t, fx.factory.LastSource().Watched())
	assert.Equal(t, 1, fx.native.released)

	delete(fx.factory.FailState, engine.StatePlaying)
	require.NoError(t, fx.ctrl.Start(context.Background()))
	require.NoError(t, fx.ctrl.Stop())
}

func TestStart_ContextWrapFailure(t *testing.T) {
	fx := newFixture(t, func(_ *Config, _ *enginetest.Factory, w *fakeWrapper) {
		w.err = errors.New("display is not EGL capable")
	})

	terminal := metrics.TerminalErrorsTotal.WithLabelValues(t.Name(), KindContext.String())
	before := testutil.ToFloat64(terminal)

	err := fx.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContext)
	assert.ErrorIs(t, err, glbridge.ErrContext)
	assert.Equal(t, StateNull, fx.ctrl.State())
	assert.Nil(t, fx.factory.LastPipeline(), "no pipeline is created without a context")
	assert.Nil(t, fx.factory.LastSource(), "no source is built without a context")
	assert.Equal(t, before, testutil.ToFloat64(terminal), "a failed Start is not a terminal run error")
}

func TestController_ContextActivationFailureEndsRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	fx.native.activateErr = errors.New("eglMakeCurrent failed")

	require.NoError(t, fx.ctrl.Start(context.Background()))
	pad := fx.emitVideoPad("v")
	assert.False(t, pad.IsLinked())
	waitDone(t, fx.ctrl)

	err := fx.ctrl.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContext)
	assert.Equal(t, StateNull, fx.ctrl.State())
}

func TestController_LinkErrorIsWarning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)
	require.NoError(t, fx.ctrl.Start(context.Background()))

	pad := enginetest.NewSourcePad("v", "video", "H264")
	pad.FailLinks(errors.New("incompatible caps"))
	fx.factory.LastSource().EmitPadAdded(pad)
	fx.factory.LastSource().EmitPadRemoved(enginetest.NewSourcePad("ghost", "video", "H264"))

	assert.Equal(t, StatePlaying, fx.ctrl.State())
	warnings := fx.ctrl.Warnings()
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.ErrorIs(t, w, ErrLink)
	}
	assert.Equal(t, 2, fx.ctrl.Stats().Warnings)

	assert.NoError(t, fx.ctrl.Stop())
}

func TestController_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- fx.ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return fx.ctrl.State() == StatePlaying }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateNull, fx.ctrl.State())
}

func TestController_Restart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	fx := newFixture(t, nil)

	require.NoError(t, fx.ctrl.Start(context.Background()))
	assert.Error(t, fx.ctrl.Start(context.Background()), "already started")
	first := fx.ctrl.Stats().RunID
	require.NoError(t, fx.ctrl.Stop())

	require.NoError(t, fx.ctrl.Start(context.Background()))
	assert.NotEqual(t, first, fx.ctrl.Stats().RunID)
	assert.Equal(t, StatePlaying, fx.ctrl.State())
	require.NoError(t, fx.ctrl.Stop())
}

type stubResolver struct{ err error }

func (r stubResolver) LookupHost(context.Context, string) ([]string, error) {
	return []string{"192.0.2.10"}, r.err
}

func TestStart_ResolveHost(t *testing.T) {
	f := enginetest.NewFactory()
	cfg := testConfig(t)
	cfg.ResolveHost = true

	ctrl, err := New(cfg,
		withFactory(f),
		withWrapper(&fakeWrapper{native: &fakeNative{}}),
		WithConsumer(func(uintptr, []byte, int, int, int) {}),
		WithResolver(stubResolver{err: errors.New("no such host")}),
	)
	require.NoError(t, err)

	err = ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrConfig)
	assert.Nil(t, f.LastPipeline())
	assert.NoError(t, ctrl.Stop(), "nothing to stop")
}

func TestController_NeverStarted(t *testing.T) {
	fx := newFixture(t, nil)
	assert.NoError(t, fx.ctrl.Stop())
	assert.NoError(t, fx.ctrl.Wait())
	assert.Equal(t, StateNull, fx.ctrl.State())
	<-fx.ctrl.Done()
}
