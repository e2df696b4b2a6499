package transcode

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/richinsley/goglfilter/frames"
	"github.com/richinsley/goglfilter/pipeline"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Job filters one video file into another.
type Job struct {
	Input      string
	Output     string
	FPS        int
	FFmpegPath string

	// Progress receives the encoded percentage of the input duration whenever
	// it changes. Nil logs it.
	Progress func(percent int)

	// Log receives ffmpeg diagnostics that are not progress keys. Nil logs them.
	Log func(line string)
}

// PassFactory builds the shader pass once the frame size is known. It is
// called on the goroutine that calls Run.
type PassFactory func(width, height int) (pipeline.Pass, error)

var errEncoderExited = errors.New("encoder exited")

// DefaultOutput names the output after the input: clip.mov at 60fps becomes
// clip_webgl_60.mp4 in the same directory.
func DefaultOutput(input string, fps int) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return fmt.Sprintf("%s_webgl_%d.mp4", stem, fps)
}

func (job *Job) decoder(info MediaInfo) *ffmpeg.Stream {
	s := ffmpeg.Input(job.Input).
		Output("pipe:", ffmpeg.KwArgs{
			"vf":      fmt.Sprintf("fps=%d,scale=%d:%d", job.FPS, info.Width, info.Height),
			"pix_fmt": "rgba",
			"f":       "rawvideo",
		}).
		GlobalArgs("-hide_banner", "-loglevel", "error")
	if job.FFmpegPath != "" {
		s = s.SetFfmpegPath(job.FFmpegPath)
	}
	return s
}

func (job *Job) encoder(info MediaInfo) *ffmpeg.Stream {
	streams := []*ffmpeg.Stream{
		ffmpeg.Input("pipe:", ffmpeg.KwArgs{
			"f":       "rawvideo",
			"pix_fmt": "rgba",
			"s":       fmt.Sprintf("%dx%d", info.Width, info.Height),
			"r":       job.FPS,
		}),
	}
	outputArgs := ffmpeg.KwArgs{
		"c:v":       "libx264",
		"pix_fmt":   "yuv420p",
		"profile:v": "high",
		"level":     "4.2",
		"preset":    "veryfast",
		"crf":       20,
		"movflags":  "+faststart",
	}
	if info.HasAudio {
		streams = append(streams, ffmpeg.Input(job.Input).Audio())
		outputArgs["c:a"] = "aac"
		outputArgs["b:a"] = "160k"
		outputArgs["shortest"] = ""
	}

	// GlobalArgs wraps the stream in a new node, so the overwrite flag goes last
	s := ffmpeg.Output(streams, job.Output, outputArgs).
		GlobalArgs("-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:2").
		OverWriteOutput()
	if job.FFmpegPath != "" {
		s = s.SetFfmpegPath(job.FFmpegPath)
	}
	return s
}

// Run probes the input, then streams decoder -> pass -> encoder until the
// decoder runs dry. Rendering happens on the calling goroutine; the two ffmpeg
// processes are waited on in the background.
func Run(job *Job, newPass PassFactory) error {
	if job.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %d", job.FPS)
	}
	info := Probe(job.Input)
	log.Printf("Input %s: %dx%d, %.2fs, audio=%v", job.Input, info.Width, info.Height, info.Duration, info.HasAudio)

	report := job.Progress
	if report == nil {
		report = func(pct int) { log.Printf("Progress: %d%%", pct) }
	}
	logLine := job.Log
	if logLine == nil {
		logLine = func(line string) { log.Printf("ffmpeg: %s", line) }
	}
	progress := newProgressWriter(info.Duration, report, logLine)

	decodedReader, decodedWriter := io.Pipe()
	filteredReader, filteredWriter := io.Pipe()

	decodeErr := make(chan error, 1)
	go func() {
		err := job.decoder(info).WithOutput(decodedWriter).WithErrorOutput(os.Stderr).Run()
		decodedWriter.CloseWithError(err)
		decodeErr <- err
	}()

	encodeErr := make(chan error, 1)
	go func() {
		err := job.encoder(info).WithInput(filteredReader).WithErrorOutput(progress).Run()
		if err == nil {
			err = errEncoderExited
		}
		filteredReader.CloseWithError(err)
		encodeErr <- err
	}()

	size := frames.Size(info.Width, info.Height)
	p := pipeline.New(
		frames.NewReader(decodedReader, size),
		frames.NewWriter(filteredWriter, size),
		job.FPS,
		func() (pipeline.Pass, error) {
			return newPass(info.Width, info.Height)
		},
	)
	p.OnState = func(s pipeline.State) {
		log.Printf("Pipeline %s", s)
	}

	runErr := p.Run()
	if runErr != nil {
		// unblock both processes so they exit
		decodedReader.CloseWithError(runErr)
		filteredWriter.CloseWithError(runErr)
	}

	dErr := <-decodeErr
	eErr := <-encodeErr
	if errors.Is(eErr, errEncoderExited) {
		eErr = nil
	}

	switch {
	case runErr != nil:
		return runErr
	case dErr != nil:
		return fmt.Errorf("decoder failed: %w", dErr)
	case eErr != nil:
		return fmt.Errorf("encoder failed: %w", eErr)
	}
	log.Printf("Wrote %s", job.Output)
	return nil
}
