package transcode

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/richinsley/goglfilter/options"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaInfo is what the transcoder needs to know about its input.
type MediaInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds, 0 when unknown
	HasAudio bool
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on input. Failures leave the defaults in place.
func Probe(input string) MediaInfo {
	out, err := ffmpeg.Probe(input)
	if err != nil {
		log.Printf("Warning: ffprobe failed on %s: %v", input, err)
		return parseProbe("")
	}
	return parseProbe(out)
}

// parseProbe reads ffprobe's JSON. The first video stream supplies the size and
// duration; the container duration is used when the stream has none.
func parseProbe(data string) MediaInfo {
	info := MediaInfo{
		Width:  options.DefaultWidth,
		Height: options.DefaultHeight,
	}

	var p probeOutput
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return info
	}

	videoSeen := false
	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			if s.Width > 0 {
				info.Width = s.Width
			}
			if s.Height > 0 {
				info.Height = s.Height
			}
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				info.Duration = d
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Duration == 0 {
		if d, err := strconv.ParseFloat(p.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info
}
