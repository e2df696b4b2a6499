package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/richinsley/goglfilter/frames"
)

// Pass renders one frame at a time into a surface that can be read back.
type Pass interface {
	Render(frame []byte, t float64) error
	ReadPixels(dst []byte) error
}

// State is a stage in the life of a Pipeline.
type State int

const (
	Initializing State = iota
	Streaming
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// TimeAt returns the shader time for frame index i.
func TimeAt(i int, fps int) float64 {
	return float64(i) / float64(fps)
}

// Pipeline moves frames from a source through a pass to a sink, strictly one
// frame at a time: the readback of frame i completes before frame i+1 is
// uploaded.
type Pipeline struct {
	source *frames.Reader
	sink   *frames.Writer
	setup  func() (Pass, error)
	fps    int

	state  State
	frames int

	// OnState, if set, is called on every state change.
	OnState func(State)
}

// New returns a pipeline that builds its pass with setup when Run starts.
func New(source *frames.Reader, sink *frames.Writer, fps int, setup func() (Pass, error)) *Pipeline {
	return &Pipeline{
		source: source,
		sink:   sink,
		setup:  setup,
		fps:    fps,
	}
}

func (p *Pipeline) State() State {
	return p.state
}

// Frames returns the number of frames rendered and written.
func (p *Pipeline) Frames() int {
	return p.frames
}

func (p *Pipeline) enter(s State) {
	p.state = s
	if p.OnState != nil {
		p.OnState(s)
	}
}

// Run drives the pipeline to completion. A setup failure is returned without
// touching the sink. At end of input the sink is closed and Run returns nil.
func (p *Pipeline) Run() error {
	if p.fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", p.fps)
	}

	p.enter(Initializing)
	pass, err := p.setup()
	if err != nil {
		p.enter(Terminated)
		return err
	}

	p.enter(Streaming)
	out := make([]byte, p.source.FrameSize())
	for {
		frame, err := p.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.enter(Terminated)
			return err
		}

		if err := pass.Render(frame, TimeAt(p.frames, p.fps)); err != nil {
			p.enter(Terminated)
			return fmt.Errorf("failed to render frame %d: %w", p.frames, err)
		}
		if err := pass.ReadPixels(out); err != nil {
			p.enter(Terminated)
			return fmt.Errorf("failed to read back frame %d: %w", p.frames, err)
		}
		if err := p.sink.Write(out); err != nil {
			p.enter(Terminated)
			return err
		}
		p.frames++
	}

	p.enter(Draining)
	err = p.sink.Close()
	p.enter(Terminated)
	if err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	log.Printf("Processed %d frames", p.frames)
	return nil
}
