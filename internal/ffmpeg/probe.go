package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecType     string            `json:"codec_type"` // video, audio, subtitle
	BitRate       string            `json:"bit_rate,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	ChannelLayout string            `json:"channel_layout,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// AudioInfo describes the first audio stream of a probed file.
type AudioInfo struct {
	Format     string        `json:"format"`
	Codec      string        `json:"codec"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitRate    string        `json:"bit_rate"`
}

// ProbeAudio runs ffprobe on filePath. A file without an audio stream yields a
// DecodeError wrapping ErrNoAudioStream.
func (c *Converter) ProbeAudio(ctx context.Context, filePath string) (*AudioInfo, error) {
	name := filepath.Base(filePath)
	if _, err := c.lookPath(c.ffprobePath); err != nil {
		return nil, &DecodeError{File: name, Err: fmt.Errorf("%w: %v", ErrConverterUnavailable, err)}
	}

	output, err := c.run(ctx, c.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DecodeError{File: name, Err: fmt.Errorf("ffprobe: %w", err)}
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, &DecodeError{File: name, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	for _, s := range result.Streams {
		if s.CodecType != "audio" {
			continue
		}
		rate, _ := strconv.Atoi(s.SampleRate)
		return &AudioInfo{
			Format:     result.Format.FormatName,
			Codec:      s.CodecName,
			Duration:   parseSeconds(result.Format.Duration),
			SampleRate: rate,
			Channels:   s.Channels,
			BitRate:    result.Format.BitRate,
		}, nil
	}

	return nil, &DecodeError{File: name, Err: ErrNoAudioStream}
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
