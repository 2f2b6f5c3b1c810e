package graph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/stream-texture/internal/engine"
)

// Acceleration selects the H.264 decoder.
type Acceleration int

const (
	AccelAuto Acceleration = iota
	AccelVAAPI
	AccelSoftware
)

func (a Acceleration) String() string {
	switch a {
	case AccelAuto:
		return "auto"
	case AccelVAAPI:
		return "vaapi"
	case AccelSoftware:
		return "software"
	}
	return fmt.Sprintf("acceleration(%d)", int(a))
}

// ParseAcceleration accepts "auto", "vaapi" and "software". Empty means auto.
func ParseAcceleration(s string) (Acceleration, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return AccelAuto, nil
	case "vaapi":
		return AccelVAAPI, nil
	case "software":
		return AccelSoftware, nil
	}
	return 0, fmt.Errorf("graph: unknown acceleration %q", s)
}

// Prop is an element property assignment.
type Prop struct {
	Name  string
	Value any
}

// Stage describes one element of the decode chain.
type Stage struct {
	Name    string
	Factory string
	// Caps is set for capsfilter stages.
	Caps  string
	Props []Prop
}

// Plan is the ordered decode chain for one video pad, from the queue fed by
// the source pad down to the frame sink.
type Plan struct {
	Stages []Stage
	// SinkProps configure the appsink that hands frames to the bridge.
	SinkProps []Prop
	// GLSink wraps the appsink in glsinkbin; set when frames are uploaded
	// into a wrapped GL context.
	GLSink bool
	VAAPI  bool
}

// Factories lists every element factory the plan instantiates, including the
// sink.
func (p Plan) Factories() []string {
	out := make([]string, 0, len(p.Stages)+2)
	for _, s := range p.Stages {
		out = append(out, s.Factory)
	}
	if p.GLSink {
		out = append(out, "glsinkbin")
	}
	return append(out, "appsink")
}

// Decoder returns the decoder factory of the plan.
func (p Plan) Decoder() string {
	for _, s := range p.Stages {
		if s.Name == "decoder" {
			return s.Factory
		}
	}
	return ""
}

// Options shape the decode chain.
type Options struct {
	Acceleration Acceleration
	Width        uint
	Height       uint
	// GL selects GPU upload into the wrapped context instead of system
	// memory RGBA.
	GL bool
}

const (
	vaapiDecoder  = "vaapih264dec"
	vaapiPostproc = "vaapipostproc"
	swDecoder     = "avdec_h264"
)

// PlanChain resolves the decoder against the installed factories and returns
// the chain for opts:
//
//	queue → rtph264depay → h264parse → decoder → [vaapipostproc] → videoconvert →
//	[videoscale] → capsfilter(RGBA,w,h) → [glupload → capsfilter(GLMemory) → glsinkbin] → appsink
func PlanChain(f engine.Factory, opts Options) (Plan, error) {
	if opts.Width == 0 || opts.Height == 0 {
		return Plan{}, fmt.Errorf("graph: target dimensions must be positive, got %dx%d", opts.Width, opts.Height)
	}

	vaapi := false
	switch opts.Acceleration {
	case AccelAuto:
		vaapi = f.Has(vaapiDecoder) && f.Has(vaapiPostproc)
		if !vaapi {
			slog.Debug("graph: VAAPI unavailable, using software decoder")
		}
	case AccelVAAPI:
		for _, name := range []string{vaapiDecoder, vaapiPostproc} {
			if !f.Has(name) {
				return Plan{}, fmt.Errorf("%w: %s (VAAPI required)", engine.ErrNoFactory, name)
			}
		}
		vaapi = true
	case AccelSoftware:
	default:
		return Plan{}, fmt.Errorf("graph: invalid acceleration %s", opts.Acceleration)
	}

	p := Plan{GLSink: opts.GL, VAAPI: vaapi}
	p.Stages = append(p.Stages,
		Stage{Name: "queue", Factory: "queue", Props: []Prop{
			{"leaky", 2},
			{"max-size-buffers", uint(1)},
			{"max-size-bytes", uint(0)},
			{"max-size-time", uint64(0)},
		}},
		Stage{Name: "depay", Factory: "rtph264depay", Props: []Prop{{"request-keyframe", true}}},
		Stage{Name: "parse", Factory: "h264parse"},
	)

	if vaapi {
		p.Stages = append(p.Stages,
			Stage{Name: "decoder", Factory: vaapiDecoder, Props: []Prop{{"low-latency", true}}},
			Stage{Name: "postproc", Factory: vaapiPostproc, Props: []Prop{
				{"width", int(opts.Width)},
				{"height", int(opts.Height)},
			}},
			Stage{Name: "convert", Factory: "videoconvert", Props: []Prop{{"n-threads", uint(0)}}},
		)
	} else {
		p.Stages = append(p.Stages,
			Stage{Name: "decoder", Factory: swDecoder, Props: []Prop{
				{"max-threads", 0},
				{"output-corrupt", false},
			}},
			Stage{Name: "convert", Factory: "videoconvert", Props: []Prop{{"n-threads", uint(0)}}},
			Stage{Name: "scale", Factory: "videoscale"},
		)
	}

	p.Stages = append(p.Stages, Stage{
		Name:    "format",
		Factory: "capsfilter",
		Caps:    fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", opts.Width, opts.Height),
	})

	if opts.GL {
		p.Stages = append(p.Stages,
			Stage{Name: "upload", Factory: "glupload"},
			Stage{
				Name:    "glformat",
				Factory: "capsfilter",
				Caps:    "video/x-raw(memory:GLMemory),format=RGBA,texture-target=2D",
			},
		)
	}

	p.SinkProps = []Prop{
		{"max-buffers", uint(1)},
		{"drop", true},
		{"sync", false},
	}
	return p, nil
}

// Missing returns the plan's factories that f does not provide.
func Missing(f engine.Factory, p Plan) []string {
	var missing []string
	for _, name := range p.Factories() {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
