// Package plugin loads the texture renderer plugin that receives decoded RGBA
// frames.
//
// The plugin is a process-wide resource: the first Acquire triggers the load,
// the result (success or failure) is cached and never retried. Reset drops
// the cached handle and exists for test isolation.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ebitengine/purego"
)

// Symbol is the exported frame callback looked up in the plugin.
const Symbol = "FlutterRgbaRendererPluginOnRgba"

// EnvPath overrides the plugin location.
const EnvPath = "STREAM_TEXTURE_PLUGIN_PATH"

// ErrUnavailable marks a missing plugin or symbol.
var ErrUnavailable = errors.New("plugin: renderer plugin unavailable")

// Consumer receives one RGBA frame for the texture at texture.
type Consumer func(texture uintptr, data []byte, width, height, stride int)

// Library is a loaded plugin.
type Library struct {
	path   string
	handle uintptr

	once     sync.Once
	consumer Consumer
	err      error
}

var (
	mu       sync.Mutex
	override string
	loaded   bool
	lib      *Library
	loadErr  error
)

// SetPath sets a path tried before EnvPath. It only affects a load that has
// not happened yet.
func SetPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	override = path
}

// Candidates lists the paths Acquire tries, in order.
func Candidates() []string {
	mu.Lock()
	defer mu.Unlock()
	return candidates()
}

func candidates() []string {
	var paths []string
	if override != "" {
		paths = append(paths, override)
	}
	if p := os.Getenv(EnvPath); p != "" {
		paths = append(paths, p)
	}
	if libraryName != "" {
		paths = append(paths, libraryName)
	}
	return paths
}

// Acquire returns the process-wide plugin, loading it on first use.
func Acquire() (*Library, error) {
	mu.Lock()
	defer mu.Unlock()
	if !loaded {
		lib, loadErr = load(candidates())
		loaded = true
		if loadErr != nil {
			slog.Warn("plugin: renderer plugin not loaded", "error", loadErr)
		} else {
			slog.Info("plugin: renderer plugin loaded", "path", lib.path)
		}
	}
	return lib, loadErr
}

// Reset forgets the cached plugin and the SetPath override and closes the
// library handle. Consumers obtained earlier must not be called afterwards.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if lib != nil {
		closeLibrary(lib.handle)
	}
	lib, loadErr, loaded = nil, nil, false
	override = ""
}

func load(paths []string) (*Library, error) {
	var errs []error
	for _, p := range paths {
		h, err := openLibrary(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		return &Library{path: p, handle: h}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string { return l.path }

// FrameConsumer resolves Symbol once and returns a Go callable for it.
func (l *Library) FrameConsumer() (Consumer, error) {
	l.once.Do(func() {
		addr, err := lookup(l.handle, Symbol)
		if err != nil {
			l.err = fmt.Errorf("%w: symbol %s: %v", ErrUnavailable, Symbol, err)
			return
		}
		var onRGBA func(texture uintptr, buffer *byte, length, width, height, stride int32)
		purego.RegisterFunc(&onRGBA, addr)
		l.consumer = func(texture uintptr, data []byte, width, height, stride int) {
			if len(data) == 0 {
				return
			}
			onRGBA(texture, &data[0], int32(len(data)), int32(width), int32(height), int32(stride))
		}
	})
	return l.consumer, l.err
}

// Resolve acquires the plugin and its frame consumer in one step.
func Resolve() (Consumer, error) {
	l, err := Acquire()
	if err != nil {
		return nil, err
	}
	return l.FrameConsumer()
}
