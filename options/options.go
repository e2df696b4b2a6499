package options

import (
	"log"
	"strconv"

	"github.com/richinsley/goglfilter/shader"
)

const (
	DefaultWidth  = 720
	DefaultHeight = 1280
	DefaultFPS    = 120
)

// FilterOptions configures one run of the frame filter.
type FilterOptions struct {
	Width        int
	Height       int
	FPS          int
	FragmentPath string // empty selects the built-in effect
	ParamsFile   string
	Params       shader.Params
}

// FromArgs reads the positional arguments <width> <height> <fps> <frag_path>.
// Missing, unparsable or non-positive numbers take their defaults.
func FromArgs(args []string) *FilterOptions {
	opts := &FilterOptions{
		Width:  positiveInt(args, 0, DefaultWidth),
		Height: positiveInt(args, 1, DefaultHeight),
		FPS:    positiveInt(args, 2, DefaultFPS),
	}
	if len(args) > 3 {
		opts.FragmentPath = args[3]
	}
	return opts
}

func positiveInt(args []string, i int, def int) int {
	if i >= len(args) {
		return def
	}
	v, err := strconv.Atoi(args[i])
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// FrameSize returns the byte length of one RGBA8 frame.
func (o *FilterOptions) FrameSize() int {
	return o.Width * o.Height * 4
}

// LoadParams builds the uniform parameter set: entries from ParamsFile, then
// entries from GL_PARAMS_JSON on top. Problems with either source are logged and
// otherwise ignored.
func (o *FilterOptions) LoadParams() {
	params := shader.Params{}
	if o.ParamsFile != "" {
		fileParams, err := shader.LoadParamsFile(o.ParamsFile)
		if err != nil {
			log.Printf("Warning: ignoring params file: %v", err)
		} else {
			params = fileParams
		}
	}
	o.Params = params.Merge(shader.ParamsFromEnv())
}
