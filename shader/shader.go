package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
)

// Sources are written in the WebGL dialect (GLSL ES 1.00) and translated to the
// desktop profile before compilation, so user shaders written for a browser
// canvas work unchanged.

// ─────────────────────────────────── Vertex ───────────────────────────────────

// The quad covers clip space; vUV runs 0..1 across it so that texel row 0 of the
// uploaded frame lands on framebuffer row 0 and readback preserves row order.
const vertexShaderSource = `
attribute vec2 aPos;
varying vec2 vUV;
void main() {
    vUV = 0.5 * (aPos + 1.0);
    gl_Position = vec4(aPos, 0.0, 1.0);
}
`

// ────────────────────────────────── Fragment ──────────────────────────────────

// DefaultFragment is the built-in effect: a time-varying UV warp, a per-channel
// chromatic offset, procedural grain and a flicker term. Each term is scaled by
// its uniform and vanishes when the uniform is left at zero.
const DefaultFragment = `
precision mediump float;
varying vec2 vUV;

uniform sampler2D uTex;
uniform float uTime;
uniform float warpAmp;
uniform float chroma;
uniform float grain;
uniform float flicker;

float hash(vec2 p) { return fract(sin(dot(p, vec2(127.1, 311.7))) * 43758.5453); }

float noise(vec2 p) {
    vec2 i = floor(p), f = fract(p);
    float a = hash(i);
    float b = hash(i + vec2(1.0, 0.0));
    float c = hash(i + vec2(0.0, 1.0));
    float d = hash(i + vec2(1.0, 1.0));
    vec2 u = f * f * (3.0 - 2.0 * f);
    return mix(mix(a, b, u.x), mix(c, d, u.x), u.y);
}

void main() {
    vec2 uv = vUV;
    float t = uTime;

    float w = warpAmp * (sin(6.2831 * (uv.y * 2.0 + t * 0.9)) + 0.6 * sin(6.2831 * (uv.x * 3.0 - t * 1.3)));
    uv += vec2(w, -w);

    vec2 cs = chroma * vec2(0.0025 * sin(t * 1.7), -0.0025 * cos(t * 1.1));
    vec3 col;
    col.r = texture2D(uTex, uv + cs).r;
    col.g = texture2D(uTex, uv).g;
    col.b = texture2D(uTex, uv - cs).b;

    float g = (noise(uv * 1024.0 + t * 60.0) - 0.5) * grain;
    float fl = flicker * sin(t * 9.0 + uv.x * 20.0);
    col += g + fl;

    gl_FragColor = vec4(clamp(col, 0.0, 1.0), 1.0);
}
`

// Names of the uniforms every pass drives itself.
const (
	TextureUniform  = "uTex"
	TimeUniform     = "uTime"
	PositionAttrib  = "aPos"
	DefaultFragName = "built-in"
)

// ───────────────────────────────── Public API ─────────────────────────────────

func GenerateVertexShader() string {
	return vertexShaderSource
}

// LoadFragment returns the fragment source to compile and a label for logging.
// An empty path selects the built-in effect. A path that does not exist also
// falls back to the built-in effect; any other read failure is an error.
func LoadFragment(path string) (source string, name string, err error) {
	if path == "" {
		return DefaultFragment, DefaultFragName, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: fragment shader %s not found, using the built-in effect", path)
		return DefaultFragment, DefaultFragName, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read fragment shader: %w", err)
	}
	return string(b), path, nil
}
