//go:build cgo

package glbridge

/*
#cgo pkg-config: gstreamer-gl-1.0
#include <gst/gl/gl.h>

static GstGLDisplay *stx_display_new(void) {
	return gst_gl_display_new();
}

static guint stx_display_type(GstGLDisplay *display) {
	return (guint) gst_gl_display_get_handle_type(display);
}

static GstGLContext *stx_context_wrap(GstGLDisplay *display, guintptr handle, guint platform, guint api) {
	return gst_gl_context_new_wrapped(display, handle, (GstGLPlatform) platform, (GstGLAPI) api);
}

static gboolean stx_context_activate(GstGLContext *context, gboolean active) {
	return gst_gl_context_activate(context, active);
}

static void stx_share(guintptr target, GstGLDisplay *display, GstGLContext *context) {
	GstElement *element = GST_ELEMENT(target);

	GstContext *display_ctx = gst_context_new(GST_GL_DISPLAY_CONTEXT_TYPE, TRUE);
	gst_context_set_gl_display(display_ctx, display);
	gst_element_set_context(element, display_ctx);
	gst_context_unref(display_ctx);

	GstContext *app_ctx = gst_context_new("gst.gl.app_context", TRUE);
	GstStructure *s = gst_context_writable_structure(app_ctx);
	gst_structure_set(s, "context", GST_TYPE_GL_CONTEXT, context, NULL);
	gst_element_set_context(element, app_ctx);
	gst_context_unref(app_ctx);
}

static void stx_unref(gpointer object) {
	gst_object_unref(object);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// GstWrapper wraps host contexts with GstGLContext.
type GstWrapper struct{}

// NewGstWrapper returns the GStreamer GL wrapper. GStreamer must already be
// initialized.
func NewGstWrapper() *GstWrapper { return &GstWrapper{} }

func (GstWrapper) Wrap(h Handle) (Native, error) {
	display := C.stx_display_new()
	if display == nil {
		return nil, fmt.Errorf("%w: no GL display available", ErrContext)
	}

	dt := DisplayType(C.stx_display_type(display))
	if !Supports(dt, h.Platform) {
		C.stx_unref(C.gpointer(unsafe.Pointer(display)))
		return nil, fmt.Errorf("%w: %s context on display type %#x", ErrContext, h.Platform, uint(dt))
	}

	ctx := C.stx_context_wrap(display, C.guintptr(h.Pointer), C.guint(h.Platform), C.guint(h.API))
	if ctx == nil {
		C.stx_unref(C.gpointer(unsafe.Pointer(display)))
		return nil, fmt.Errorf("%w: engine could not wrap %s", ErrContext, h)
	}

	return &gstContext{display: display, context: ctx}, nil
}

type gstContext struct {
	once    sync.Once
	display *C.GstGLDisplay
	context *C.GstGLContext
}

func (g *gstContext) Activate(active bool) error {
	var flag C.gboolean
	if active {
		flag = 1
	}
	if C.stx_context_activate(g.context, flag) == 0 {
		return errors.New("gst_gl_context_activate failed")
	}
	return nil
}

func (g *gstContext) Share(target uintptr) error {
	if target == 0 {
		return errors.New("null target element")
	}
	C.stx_share(C.guintptr(target), g.display, g.context)
	return nil
}

func (g *gstContext) Release() {
	g.once.Do(func() {
		C.stx_unref(C.gpointer(unsafe.Pointer(g.context)))
		C.stx_unref(C.gpointer(unsafe.Pointer(g.display)))
	})
}
