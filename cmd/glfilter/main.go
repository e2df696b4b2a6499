package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/richinsley/goglfilter/frames"
	"github.com/richinsley/goglfilter/options"
	"github.com/richinsley/goglfilter/pipeline"
	"github.com/richinsley/goglfilter/renderer"
	"github.com/richinsley/goglfilter/shader"
)

func init() {
	runtime.LockOSThread()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] [width] [height] [fps] [frag_path]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Reads raw RGBA frames on stdin and writes filtered frames to stdout.\n")
	fmt.Fprintf(os.Stderr, "Uniform parameters are read as a JSON object from $%s.\n\n", shader.ParamsEnv)
	flag.PrintDefaults()
}

func main() {
	var paramsFile = flag.String("params", "", "Uniform parameter file (.json, .yaml or .toml)")
	var quiet = flag.Bool("quiet", false, "Only log errors")
	flag.Usage = usage
	flag.Parse()
	setupLogging(*quiet)

	opts := options.FromArgs(flag.Args())
	opts.ParamsFile = *paramsFile
	opts.LoadParams()

	source, name, err := shader.LoadFragment(opts.FragmentPath)
	if err != nil {
		fatal("Error loading fragment shader: %v", err)
	}
	log.Printf("Filtering %dx%d frames at %d fps with the %s shader", opts.Width, opts.Height, opts.FPS, name)

	ctx, err := renderer.NewContext(opts.Width, opts.Height)
	if err != nil {
		fatal("Failed to create GPU context: %v", err)
	}
	defer ctx.Shutdown()

	var pass *renderer.ShaderPass
	p := pipeline.New(
		frames.NewReader(os.Stdin, opts.FrameSize()),
		frames.NewWriter(os.Stdout, opts.FrameSize()),
		opts.FPS,
		func() (pipeline.Pass, error) {
			var err error
			pass, err = renderer.NewShaderPass(ctx, renderer.Config{
				Width:          opts.Width,
				Height:         opts.Height,
				FragmentSource: source,
				Params:         opts.Params,
			})
			if err != nil {
				return nil, err
			}
			return pass, nil
		},
	)
	p.OnState = func(s pipeline.State) {
		log.Printf("Pipeline %s", s)
	}

	err = p.Run()
	if pass != nil {
		pass.Destroy()
	}
	if err != nil {
		ctx.Shutdown()
		fatal("Filter failed: %v", err)
	}
}

// setupLogging sends log output to stderr, or nowhere in quiet mode. Stdout
// carries frames only.
func setupLogging(quiet bool) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if quiet {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
}

// fatal logs to stderr even in quiet mode and exits non-zero.
func fatal(format string, args ...any) {
	log.SetOutput(os.Stderr)
	log.Fatalf(format, args...)
}
