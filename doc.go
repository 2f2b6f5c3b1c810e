// Package streamtexture plays a live RTSP stream into a texture owned by a
// host UI surface.
//
// The pipeline starts with only the network source. When the RTSP handshake
// reports a video pad, the decode chain (depayload, parse, decode, convert,
// upload) is built and linked on the fly, and every decoded RGBA frame whose
// size matches the texture target is handed to the renderer plugin's frame
// callback.
//
// # Quick Start
//
//	ctrl, err := streamtexture.New(streamtexture.Config{
//	    Stream: streamtexture.StreamDescriptor{
//	        URI:             "rtsp://192.168.1.100/stream",
//	        LatencyBudgetMS: 100,
//	        KeepAlive:       true,
//	    },
//	    GLContext: streamtexture.GLContextHandle{
//	        Pointer:  eglContext,
//	        Platform: streamtexture.PlatformEGL,
//	        API:      streamtexture.APIGLES2,
//	    },
//	    Texture: streamtexture.TextureTarget{Pointer: texture, Width: 640, Height: 480},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := ctrl.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	// ...
//	if err := ctrl.Stop(); err != nil {
//	    var rec *streamtexture.ErrorRecord
//	    if errors.As(err, &rec) {
//	        log.Printf("stream failed in %s: %s", rec.SourceComponent, rec.Message)
//	    }
//	}
//
// # GL context
//
// The GL context stays owned by the host. The decode chain activates it on
// the thread that runs GL upload; the host must not make it current elsewhere
// while the stream plays. A zero GLContextHandle delivers frames from system
// memory instead.
//
// # Errors
//
// New and Start return ErrConfig and ErrContext synchronously. Engine errors
// (ErrRuntime) and context activation failures end the run and are returned
// exactly once by Stop or Wait, after the pipeline reached Null. Link and
// plugin problems never end the run and are listed by Warnings.
package streamtexture
