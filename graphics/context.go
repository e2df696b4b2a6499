package graphics

// Context is an OpenGL context the filter can render into. Rendering happens
// in offscreen framebuffers, so a context only has to be made current and torn
// down.
type Context interface {
	// MakeCurrent binds the context to the calling thread. Nothing may be drawn
	// when it fails.
	MakeCurrent() error
	Shutdown()
}
