package glfwcontext

import (
	"fmt"
	"log"
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
)

// Context is an OpenGL 4.1 core context owned by an invisible GLFW window. It is
// the fallback where headless EGL is unavailable (macOS, Windows, or Linux
// without a usable EGL driver), and needs a display server.
type Context struct {
	window *glfw.Window
}

// New creates a hidden window of the given size. InitGraphics must have been
// called on the main thread first.
func New(width, height int) (*Context, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	win, err := glfw.CreateWindow(width, height, "glfilter", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create hidden window: %w", err)
	}
	return &Context{window: win}, nil
}

// MakeCurrent makes the context current for the calling goroutine.
func (c *Context) MakeCurrent() error {
	if c.window == nil {
		return fmt.Errorf("window has been destroyed")
	}
	c.window.MakeContextCurrent()
	return nil
}

// Shutdown destroys the window and terminates GLFW.
func (c *Context) Shutdown() {
	if c.window != nil {
		c.window.Destroy()
		c.window = nil
	}
	TerminateGraphics()
}

// InitGraphics initializes GLFW. Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	log.Printf("GLFW Initialized")
	return nil
}

// TerminateGraphics shuts down GLFW. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	log.Printf("GLFW Terminated")
}
