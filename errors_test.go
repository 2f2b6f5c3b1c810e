package streamtexture

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		debug string
		want  ErrorCategory
	}{
		{"auth", "Unauthorized", "401 response from server", CategoryAuth},
		{"auth wins over network", "Could not connect to server", "authentication failed", CategoryAuth},
		{"codec", "Internal data stream error", "streaming stopped, reason not-negotiated (not negotiated)", CategoryCodec},
		{"codec wins over network", "No decoder available for type application/x-rtp", "rtspsrc", CategoryCodec},
		{"network", "Could not open resource for reading", "Could not connect to server. (Timeout while waiting for server response)", CategoryNetwork},
		{"unknown", "Something odd happened", "", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.text, tt.debug))
		})
	}
}

func TestEngineError(t *testing.T) {
	rec := engineError("source", "Could not read from resource.", "gstrtspsrc.c(5583): Could not receive message. (Timeout)")

	assert.Equal(t, KindRuntime, rec.Kind)
	assert.Equal(t, "engine", rec.SourceComponent)
	assert.Equal(t, "Could not read from resource.", rec.Message)
	assert.Equal(t, "element source: gstrtspsrc.c(5583): Could not receive message. (Timeout)", rec.DebugDetail)
	assert.Equal(t, CategoryNetwork, rec.Category)
	assert.Contains(t, rec.Error(), "engine: runtime error")

	bare := engineError("", "boom", "")
	assert.Empty(t, bare.DebugDetail)
	assert.Equal(t, "engine: runtime error: boom", bare.Error())
}

func TestErrorRecord_IsAndUnwrap(t *testing.T) {
	cause := errors.New("no element \"h264parse\"")
	rec := newRecord(KindConfig, "graph", cause)

	var err error = fmt.Errorf("start: %w", rec)
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRuntime)
	assert.True(t, IsKind(err, KindConfig))
	assert.False(t, IsKind(err, KindLink))
	assert.False(t, IsKind(cause, KindConfig))

	var got *ErrorRecord
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "graph", got.SourceComponent)
	assert.Equal(t, cause.Error(), got.Message)
}

func TestErrorKind_String(t *testing.T) {
	for kind, want := range map[ErrorKind]string{
		KindConfig:   "config",
		KindLink:     "link",
		KindContext:  "context",
		KindRuntime:  "runtime",
		KindPlugin:   "plugin",
		ErrorKind(0): "unknown",
	} {
		assert.Equal(t, want, kind.String())
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(engineError("source", "Could not connect to server", "")))
	assert.True(t, Retryable(engineError("source", "Something odd happened", "")))
	assert.False(t, Retryable(engineError("source", "Unauthorized", "401")))
	assert.False(t, Retryable(engineError("decoder", "not negotiated", "")))
	assert.False(t, Retryable(newRecord(KindContext, "glbridge", errors.New("activate"))))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}
