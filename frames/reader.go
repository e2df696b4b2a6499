package frames

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
)

// ErrFrameSize is returned when a frame of the wrong length is handed to a Writer.
var ErrFrameSize = errors.New("frame has wrong size")

// Size returns the byte length of one RGBA8 frame.
func Size(width, height int) int {
	return width * height * 4
}

// Reader slices a byte stream into fixed-size frames. The underlying stream may
// deliver data in increments of any size; Reader accumulates until a whole frame
// is available.
type Reader struct {
	r       io.Reader
	buf     []byte
	count   int
	dropped int
}

// NewReader returns a Reader for frames of size bytes. A size that is not
// positive makes every Next fail with ErrFrameSize.
func NewReader(r io.Reader, size int) *Reader {
	size = max(size, 0)
	return &Reader{
		r:   r,
		buf: make([]byte, size),
	}
}

// Next blocks until a complete frame has been read and returns it. The returned
// slice is only valid until the next call. At the end of the stream Next returns
// io.EOF; a trailing partial frame is discarded and also ends with io.EOF.
func (fr *Reader) Next() ([]byte, error) {
	if len(fr.buf) == 0 {
		return nil, fmt.Errorf("%w: reader frame size is zero", ErrFrameSize)
	}
	n, err := io.ReadFull(fr.r, fr.buf)
	switch {
	case err == nil:
		fr.count++
		return fr.buf, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		fr.dropped = n
		log.Printf("Input ended mid-frame, dropping %d trailing bytes", n)
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("failed to read frame %d: %w", fr.count, err)
	}
}

// Frames returns the remaining frames as a sequence. The sequence stops silently
// at end of stream and yields a non-nil error once for any other failure.
func (fr *Reader) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			frame, err := fr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(frame, err) || err != nil {
				return
			}
		}
	}
}

// Count returns the number of complete frames read so far.
func (fr *Reader) Count() int {
	return fr.count
}

// Dropped returns the number of trailing bytes discarded at end of stream.
func (fr *Reader) Dropped() int {
	return fr.dropped
}

// FrameSize returns the byte length of the frames produced by Next.
func (fr *Reader) FrameSize() int {
	return len(fr.buf)
}
