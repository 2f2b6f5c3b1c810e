package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonNoConsumer        = "no_consumer"
	ReasonNullTexture       = "null_texture"
)

var (
	FramesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_texture_frames_delivered_total",
		Help: "Total number of frames handed to the texture consumer",
	}, []string{"stream"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_texture_frames_dropped_total",
		Help: "Total number of decoded frames not handed to the consumer, by reason",
	}, []string{"stream", "reason"})

	ChainBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_texture_chain_builds_total",
		Help: "Total number of decode chain build attempts by result",
	}, []string{"stream", "result"})

	TerminalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_texture_terminal_errors_total",
		Help: "Total number of runs that ended with an error, by kind",
	}, []string{"stream", "kind"})
)

// Stream records counters for one named stream.
type Stream struct {
	name string
}

// ForStream returns the recorder for name. An empty name is recorded as "default".
func ForStream(name string) Stream {
	if name == "" {
		name = "default"
	}
	return Stream{name: name}
}

// FrameDelivered records one frame handed to the consumer.
func (s Stream) FrameDelivered() {
	FramesDeliveredTotal.WithLabelValues(s.name).Inc()
}

// FrameDropped records one dropped frame.
func (s Stream) FrameDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	FramesDroppedTotal.WithLabelValues(s.name, reason).Inc()
}

// ChainBuild records a build attempt; result is "ok" or "failed".
func (s Stream) ChainBuild(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	ChainBuildsTotal.WithLabelValues(s.name, result).Inc()
}

// TerminalError records a run that ended with an error of kind.
func (s Stream) TerminalError(kind string) {
	TerminalErrorsTotal.WithLabelValues(s.name, kind).Inc()
}
