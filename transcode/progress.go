package transcode

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"sync"
)

// progressWriter consumes ffmpeg's "-progress pipe:2" output, turns the
// out_time keys into a percentage of the input duration, and forwards every
// other line to log.
type progressWriter struct {
	mu       sync.Mutex
	duration float64
	partial  []byte
	last     int
	report   func(percent int)
	log      func(line string)
}

func newProgressWriter(duration float64, report func(int), log func(string)) *progressWriter {
	return &progressWriter{
		duration: duration,
		last:     -1,
		report:   report,
		log:      log,
	}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(w.partial[:i]))
		w.partial = w.partial[i+1:]
		w.line(line)
	}
	return len(p), nil
}

func (w *progressWriter) line(s string) {
	if s == "" {
		return
	}
	key, val, ok := strings.Cut(s, "=")
	if !ok {
		w.emitLog(s)
		return
	}
	switch key {
	case "out_time_ms", "out_time_us":
		us, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err == nil {
			w.progress(float64(us) / 1e6)
		}
	case "out_time":
		if secs, ok := parseClock(strings.TrimSpace(val)); ok {
			w.progress(secs)
		}
	case "frame", "fps", "stream_0_0_q", "bitrate", "total_size", "dup_frames",
		"drop_frames", "speed", "progress":
	default:
		w.emitLog(s)
	}
}

func (w *progressWriter) emitLog(s string) {
	if w.log != nil {
		w.log(s)
	}
}

func (w *progressWriter) progress(secs float64) {
	if w.duration <= 0 || w.report == nil {
		return
	}
	pct := int(math.Round(secs / w.duration * 100))
	pct = max(0, min(100, pct))
	if pct == w.last {
		return
	}
	w.last = pct
	w.report(pct)
}

// parseClock parses HH:MM:SS.fraction into seconds.
func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + sec, true
}
