package renderer

import (
	"fmt"
	"log"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/goglfilter/graphics"
	"github.com/richinsley/goglfilter/shader"
	"github.com/richinsley/goglfilter/translator"
)

// Config describes the pass to build.
type Config struct {
	Width          int
	Height         int
	FragmentSource string
	Params         shader.Params
}

// ShaderPass owns every GPU resource of the filter: the program, the static
// quad, the input texture and the render surface. It is built once and then
// renders one frame per call.
type ShaderPass struct {
	program      uint32
	quadVAO      uint32
	quadVBO      uint32
	inputTexture uint32
	surface      *OffscreenRenderer
	width        int
	height       int
	timeLoc      int32
	hasTime      bool
	vertex       *translator.Translated
	fragment     *translator.Translated
}

// Two triangles covering clip space.
var quadVertices = []float32{
	-1, -1, 1, -1, -1, 1,
	-1, 1, 1, -1, 1, 1,
}

// NewShaderPass compiles the program and creates the GPU resources on ctx.
// Translation, compile and link failures are returned with the compiler log.
func NewShaderPass(ctx graphics.Context, cfg Config) (*ShaderPass, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", cfg.Width, cfg.Height)
	}
	if err := initGL(ctx); err != nil {
		return nil, err
	}

	p := &ShaderPass{
		width:  cfg.Width,
		height: cfg.Height,
	}

	var err error
	p.vertex, err = translator.ToDesktop(shader.GenerateVertexShader(), "vertex")
	if err != nil {
		return nil, err
	}
	p.fragment, err = translator.ToDesktop(cfg.FragmentSource, "fragment")
	if err != nil {
		return nil, err
	}
	p.program, err = newProgram(p.vertex.Code, p.fragment.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	gl.UseProgram(p.program)

	if err := p.initQuad(); err != nil {
		p.Destroy()
		return nil, err
	}
	p.initInputTexture()

	p.surface, err = NewOffscreenRenderer(cfg.Width, cfg.Height)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("failed to create render surface: %w", err)
	}

	if loc, ok := p.UniformLocation(shader.TextureUniform); ok {
		gl.Uniform1i(loc, 0)
	}
	p.timeLoc, p.hasTime = p.UniformLocation(shader.TimeUniform)

	for _, b := range shader.Bind(cfg.Params, p.UniformLocation) {
		setUniform(b)
		log.Printf("Uniform %s = %v", b.Name, b.Param)
	}

	return p, nil
}

func (p *ShaderPass) initQuad() error {
	posLoc := p.attribLocation(shader.PositionAttrib)
	if posLoc < 0 {
		return fmt.Errorf("vertex attribute %s not found in program", shader.PositionAttrib)
	}

	gl.GenVertexArrays(1, &p.quadVAO)
	gl.GenBuffers(1, &p.quadVBO)
	gl.BindVertexArray(p.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, p.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(uint32(posLoc))
	gl.VertexAttribPointer(uint32(posLoc), 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
	return nil
}

func (p *ShaderPass) initInputTexture() {
	gl.GenTextures(1, &p.inputTexture)
	gl.BindTexture(gl.TEXTURE_2D, p.inputTexture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(p.width), int32(p.height), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// UniformLocation looks name up in the linked program. The boolean is false
// when neither stage declares the uniform or the linker dropped it.
func (p *ShaderPass) UniformLocation(name string) (int32, bool) {
	mapped, ok := p.fragment.MappedName(name)
	if !ok {
		mapped, ok = p.vertex.MappedName(name)
	}
	if !ok {
		return -1, false
	}
	loc := gl.GetUniformLocation(p.program, gl.Str(mapped+"\x00"))
	return loc, loc >= 0
}

// attribLocation resolves a vertex attribute, trying the translator's mapped
// name before the user-facing one.
func (p *ShaderPass) attribLocation(name string) int32 {
	candidates := []string{name, "_u" + name}
	if mapped, ok := p.vertex.MappedName(name); ok {
		candidates = append([]string{mapped}, candidates...)
	}
	for _, n := range candidates {
		if loc := gl.GetAttribLocation(p.program, gl.Str(n+"\x00")); loc >= 0 {
			return loc
		}
	}
	return -1
}

func setUniform(b shader.Binding) {
	v := b.Param.Values
	switch b.Param.Kind {
	case shader.Scalar:
		gl.Uniform1f(b.Location, v[0])
	case shader.Vec2:
		gl.Uniform2f(b.Location, v[0], v[1])
	case shader.Vec3:
		gl.Uniform3f(b.Location, v[0], v[1], v[2])
	case shader.Vec4:
		gl.Uniform4f(b.Location, v[0], v[1], v[2], v[3])
	}
}

// FrameSize returns the byte length of the frames Render accepts and
// ReadPixels produces.
func (p *ShaderPass) FrameSize() int {
	return p.width * p.height * 4
}

// Render uploads frame into the input texture and draws the full-screen quad
// into the render surface with uTime set to t.
func (p *ShaderPass) Render(frame []byte, t float64) error {
	if len(frame) != p.FrameSize() {
		return fmt.Errorf("frame is %d bytes, want %d", len(frame), p.FrameSize())
	}

	gl.UseProgram(p.program)

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, p.inputTexture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(p.width), int32(p.height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&frame[0]))

	p.surface.Bind()
	gl.Viewport(0, 0, int32(p.width), int32(p.height))
	if p.hasTime {
		gl.Uniform1f(p.timeLoc, float32(t))
	}
	gl.BindVertexArray(p.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	return nil
}

// ReadPixels reads the last rendered frame back into dst.
func (p *ShaderPass) ReadPixels(dst []byte) error {
	return p.surface.ReadPixels(dst)
}

func (p *ShaderPass) Destroy() {
	if p.surface != nil {
		p.surface.Destroy()
	}
	gl.DeleteTextures(1, &p.inputTexture)
	gl.DeleteBuffers(1, &p.quadVBO)
	gl.DeleteVertexArrays(1, &p.quadVAO)
	gl.DeleteProgram(p.program)
}
