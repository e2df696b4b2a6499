package frames

import (
	"fmt"
	"io"
)

// Writer appends fixed-size frames to an output stream.
type Writer struct {
	w     io.Writer
	size  int
	count int
}

func NewWriter(w io.Writer, size int) *Writer {
	return &Writer{w: w, size: size}
}

// Write writes one whole frame. Frames of any other length are rejected with
// ErrFrameSize and nothing is written.
func (fw *Writer) Write(frame []byte) error {
	if len(frame) != fw.size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), fw.size)
	}
	// io.Writer contract: a short write always comes with an error
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", fw.count, err)
	}
	fw.count++
	return nil
}

// Close closes the underlying stream if it is an io.Closer so the consumer
// observes end of stream.
func (fw *Writer) Close() error {
	if c, ok := fw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Count returns the number of frames written.
func (fw *Writer) Count() int {
	return fw.count
}
