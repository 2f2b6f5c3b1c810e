package plugin

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidates_EnvOverrideFirst(t *testing.T) {
	t.Setenv(EnvPath, "/opt/renderer/custom.so")
	c := Candidates()
	require.Len(t, c, 2)
	assert.Equal(t, "/opt/renderer/custom.so", c[0])
	assert.Equal(t, libraryName, c[1])
}

func TestCandidates_SetPathBeforeEnv(t *testing.T) {
	t.Setenv(EnvPath, "/from/env.so")
	SetPath("/from/config.so")
	t.Cleanup(Reset)

	c := Candidates()
	require.GreaterOrEqual(t, len(c), 2)
	assert.Equal(t, []string{"/from/config.so", "/from/env.so"}, c[:2])
}

func TestAcquire_MissingIsCached(t *testing.T) {
	t.Setenv(EnvPath, "/nonexistent/libtexture_rgba_renderer_plugin.so")
	Reset()
	t.Cleanup(Reset)

	_, err := Acquire()
	if err == nil {
		t.Skip("renderer plugin installed on this host")
	}
	assert.ErrorIs(t, err, ErrUnavailable)

	// A later fix to the path is not picked up until Reset.
	t.Setenv(EnvPath, "")
	_, again := Acquire()
	assert.Same(t, err, again)

	_, err = Resolve()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFrameConsumer_MissingSymbol(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("uses the system C library as a stand-in plugin")
	}
	t.Setenv(EnvPath, "libc.so.6")
	Reset()
	t.Cleanup(Reset)

	l, err := Acquire()
	if err != nil {
		t.Skipf("libc not loadable: %v", err)
	}
	assert.Equal(t, "libc.so.6", l.Path())

	fn, err := l.FrameConsumer()
	assert.Nil(t, fn)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), Symbol)
}
