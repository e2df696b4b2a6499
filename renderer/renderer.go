package renderer

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/goglfilter/glfwcontext"
	"github.com/richinsley/goglfilter/graphics"
	"github.com/richinsley/goglfilter/headless"
)

// gl.Init loads function pointers for the current context and only needs to run once.
var (
	glInitOnce sync.Once
	glInitErr  error
)

// NewContext acquires a GPU context for offscreen rendering at the given size.
// Headless EGL is preferred; a hidden GLFW window is the fallback.
func NewContext(width, height int) (graphics.Context, error) {
	ctx, err := headless.NewHeadless(width, height)
	if err == nil {
		return ctx, nil
	}
	log.Printf("Headless EGL unavailable (%v), falling back to a hidden GLFW window", err)

	if err := glfwcontext.InitGraphics(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}
	win, err := glfwcontext.New(width, height)
	if err != nil {
		glfwcontext.TerminateGraphics()
		return nil, fmt.Errorf("no GPU context available: %w", err)
	}
	return win, nil
}

func initGL(ctx graphics.Context) error {
	if err := ctx.MakeCurrent(); err != nil {
		return fmt.Errorf("no current GPU context: %w", err)
	}
	glInitOnce.Do(func() {
		glInitErr = gl.Init()
		if glInitErr == nil {
			log.Printf("OpenGL %s (%s)", gl.GoStr(gl.GetString(gl.VERSION)), gl.GoStr(gl.GetString(gl.RENDERER)))
		}
	})
	if glInitErr != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", glInitErr)
	}
	return nil
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vertexShader)

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fragmentShader)

	program := gl.CreateProgram()
	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("failed to link program: %v", strings.TrimRight(log, "\x00"))
	}

	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("failed to compile %s shader: %v", stageName(shaderType), strings.TrimRight(logText, "\x00"))
	}
	return shader, nil
}

func stageName(shaderType uint32) string {
	switch shaderType {
	case gl.VERTEX_SHADER:
		return "vertex"
	case gl.FRAGMENT_SHADER:
		return "fragment"
	}
	return "unknown"
}
