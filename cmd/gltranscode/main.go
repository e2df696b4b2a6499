package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/richinsley/goglfilter/options"
	"github.com/richinsley/goglfilter/pipeline"
	"github.com/richinsley/goglfilter/renderer"
	"github.com/richinsley/goglfilter/service"
	"github.com/richinsley/goglfilter/shader"
	"github.com/richinsley/goglfilter/transcode"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var input = flag.String("i", "", "Input video file")
	var output = flag.String("o", "", "Output video file (default <input>_webgl_<fps>.mp4)")
	var fps = flag.Int("fps", options.DefaultFPS, "Frame rate to decode, filter and encode at")
	var fragPath = flag.String("shader", "", "Fragment shader file (built-in effect if empty)")
	var paramsFile = flag.String("params", "", "Uniform parameter file (.json, .yaml or .toml)")
	var ffmpegPath = flag.String("ffmpeg", "", "Path to ffmpeg executable")
	var serve = flag.String("serve", "", "Run the HTTP job service on this address instead of a single file")
	var uploadDir = flag.String("uploads", "uploads", "Upload directory in service mode")
	var outputDir = flag.String("outputs", "outputs", "Output directory in service mode")
	var help = flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *serve != "" {
		if err := runService(*serve, service.Config{
			UploadDir:  *uploadDir,
			OutputDir:  *outputDir,
			FFmpegPath: *ffmpegPath,
			FPS:        *fps,
		}); err != nil {
			log.Fatalf("Service failed: %v", err)
		}
		return
	}

	if *help || *input == "" {
		fmt.Println("Filter a video file through a fragment shader")
		flag.PrintDefaults()
		if *input == "" && !*help {
			os.Exit(2)
		}
		return
	}

	opts := &options.FilterOptions{
		FPS:          *fps,
		FragmentPath: *fragPath,
		ParamsFile:   *paramsFile,
	}
	opts.LoadParams()

	source, name, err := shader.LoadFragment(opts.FragmentPath)
	if err != nil {
		log.Fatalf("Error loading fragment shader: %v", err)
	}
	log.Printf("Using the %s shader", name)

	job := &transcode.Job{
		Input:      *input,
		Output:     *output,
		FPS:        opts.FPS,
		FFmpegPath: *ffmpegPath,
	}
	if job.Output == "" {
		job.Output = transcode.DefaultOutput(job.Input, job.FPS)
	}
	if err := runJob(job, source, opts.Params); err != nil {
		log.Fatalf("Transcode failed: %v", err)
	}
}

// runJob transcodes one file, creating a GPU context for it and releasing it
// afterwards. It must run on the locked main thread.
func runJob(job *transcode.Job, source string, params shader.Params) error {
	var pass *renderer.ShaderPass
	var shutdown func()
	err := transcode.Run(job, func(width, height int) (pipeline.Pass, error) {
		ctx, err := renderer.NewContext(width, height)
		if err != nil {
			return nil, fmt.Errorf("failed to create GPU context: %w", err)
		}
		shutdown = ctx.Shutdown
		pass, err = renderer.NewShaderPass(ctx, renderer.Config{
			Width:          width,
			Height:         height,
			FragmentSource: source,
			Params:         params,
		})
		if err != nil {
			return nil, err
		}
		return pass, nil
	})
	if pass != nil {
		pass.Destroy()
	}
	if shutdown != nil {
		shutdown()
	}
	return err
}

// runService serves HTTP on a background goroutine and runs jobs on this one,
// which owns the GPU thread, until interrupted.
func runService(addr string, cfg service.Config) error {
	srv, err := service.New(cfg, runJob)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Serving on %s", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	listenErr := make(chan error, 1)
	go func() {
		if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		cancel()
	}()

	err = srv.Work(workCtx)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpServer.Shutdown(shutdownCtx)

	select {
	case lerr := <-listenErr:
		return fmt.Errorf("http server: %w", lerr)
	default:
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
