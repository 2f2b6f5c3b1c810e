package plugin

const libraryName = "libtexture_rgba_renderer_plugin.dylib"
