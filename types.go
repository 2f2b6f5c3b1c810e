package streamtexture

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/glbridge"
	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/graph"
)

// Transport restricts the RTSP lower transport.
type Transport string

const (
	TransportAny Transport = ""
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// StreamDescriptor identifies the stream to play. It is immutable once handed
// to New.
type StreamDescriptor struct {
	// URI is an rtsp, rtsps or rtspt URL.
	URI string
	// LatencyBudgetMS is the jitter buffer budget in milliseconds.
	LatencyBudgetMS uint
	// KeepAlive sends RTSP keep-alive requests.
	KeepAlive bool
	// Transport restricts the negotiated transport. Empty lets the server pick.
	Transport Transport
	// TCPTimeout bounds each TCP read. Zero keeps the engine default.
	TCPTimeout time.Duration
}

// GLPlatform is the windowing binding of a GL context.
type GLPlatform = glbridge.Platform

const (
	PlatformEGL = glbridge.PlatformEGL
	PlatformGLX = glbridge.PlatformGLX
	PlatformWGL = glbridge.PlatformWGL
)

// GLAPI is the GL flavour of a context.
type GLAPI = glbridge.API

const (
	APIGLES2 = glbridge.APIGLES2
	APIGL    = glbridge.APIGL
	APIGL3   = glbridge.APIGL3
)

// GLContextHandle references a GL context owned by the host surface. The
// host keeps ownership; the handle is only valid while the host context is
// alive. A zero Pointer selects system-memory RGBA delivery.
type GLContextHandle struct {
	Pointer  uintptr
	Platform GLPlatform
	API      GLAPI
}

// TextureTarget is the host texture frames are delivered to. Frames whose
// dimensions differ from Width x Height are dropped.
type TextureTarget struct {
	Pointer uintptr
	Width   uint
	Height  uint
}

func (t TextureTarget) String() string {
	return fmt.Sprintf("%dx%d@%#x", t.Width, t.Height, t.Pointer)
}

// Acceleration selects the H.264 decoder.
type Acceleration = graph.Acceleration

const (
	// AccelAuto uses VAAPI when installed and falls back to software.
	AccelAuto = graph.AccelAuto
	// AccelVAAPI requires VAAPI; New fails with ErrConfig without it.
	AccelVAAPI = graph.AccelVAAPI
	// AccelSoftware always decodes with avdec_h264.
	AccelSoftware = graph.AccelSoftware
)

// Config configures a Controller.
type Config struct {
	// Name labels logs and metrics. Defaults to "default".
	Name string

	Stream    StreamDescriptor
	GLContext GLContextHandle
	Texture   TextureTarget

	Acceleration Acceleration

	// PluginPath is tried before the platform's renderer plugin name. It
	// overrides STREAM_TEXTURE_PLUGIN_PATH.
	PluginPath string

	// ResolveHost makes Start fail with ErrConfig when the URI host does not
	// resolve.
	ResolveHost bool
}

// PipelineState is the controller's view of the pipeline.
type PipelineState int

const (
	StateNull PipelineState = iota
	StateReady
	StatePaused
	StatePlaying
	StateError
)

func (s PipelineState) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats is a snapshot of the controller's diagnostics.
type Stats struct {
	State PipelineState
	// RunID identifies the current or last Start.
	RunID string

	FramesDelivered uint64
	// FramesDropped sums the per-reason counters below.
	FramesDropped      uint64
	DroppedDimensions  uint64
	DroppedNoConsumer  uint64
	DroppedNullTexture uint64

	PadEvents   uint64
	ChainBuilds uint64
	Warnings    int

	// Decoder is the decoder factory chosen at construction.
	Decoder string
	// Degraded is set when no frame consumer could be resolved.
	Degraded bool

	Uptime time.Duration
	// FPS is frames delivered per second of uptime.
	FPS float64

	// Cadence over the most recent deliveries.
	RecentFPS  float64
	FPSStdDev  float64
	JitterMean time.Duration
	JitterMax  time.Duration
	Stable     bool
}
