package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var ErrNoVideoStream = errors.New("uploaded file has no video stream")

// VideoInfo describes an uploaded recording video.
type VideoInfo struct {
	Duration  time.Duration `json:"-"`
	Seconds   float64       `json:"duration_seconds"`
	Container string        `json:"container"`
	Codec     string        `json:"codec"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ProbeRecording runs ffprobe on a recording video stored at path.
func ProbeRecording(path string) (*VideoInfo, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe recording video: %w", err)
	}
	return parseProbe(out)
}

// parseProbe reads ffprobe JSON. The first video stream decides codec and
// size; its duration is used when the container reports none, which is
// common for webm written by browsers.
func parseProbe(out string) (*VideoInfo, error) {
	var res probeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}

	info := &VideoInfo{Container: strings.Split(res.Format.FormatName, ",")[0]}
	found := false
	streamDuration := ""
	for _, st := range res.Streams {
		if st.CodecType != "video" {
			continue
		}
		info.Codec = st.CodecName
		info.Width, info.Height = st.Width, st.Height
		streamDuration = st.Duration
		found = true
		break
	}
	if !found {
		return nil, ErrNoVideoStream
	}

	for _, d := range []string{res.Format.Duration, streamDuration} {
		if secs, err := strconv.ParseFloat(d, 64); err == nil && secs > 0 {
			info.Seconds = secs
			info.Duration = time.Duration(secs * float64(time.Second))
			break
		}
	}
	return info, nil
}
