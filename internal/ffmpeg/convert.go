package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/audio-scribe/backend/internal/audio"
)

var (
	// ErrConverterUnavailable means the ffmpeg/ffprobe binary could not be found.
	ErrConverterUnavailable = errors.New("audio converter not available")
	// ErrNoAudioStream means the input contains no decodable audio stream.
	ErrNoAudioStream = errors.New("no audio stream found")
)

// DecodeError reports an upload that could not be turned into PCM.
type DecodeError struct {
	File string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.File, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Converter shells out to ffmpeg/ffprobe.
type Converter struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
	run         Runner
	lookPath    func(string) (string, error)
}

type Option func(*Converter)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(c *Converter) { c.run = r }
}

// WithLookPath replaces the binary lookup used to detect a missing converter.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Converter) { c.lookPath = fn }
}

// WithTempDir sets where intermediate PCM files are written.
func WithTempDir(dir string) Option {
	return func(c *Converter) { c.tempDir = dir }
}

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpegPath, ffprobePath string) Option {
	return func(c *Converter) {
		c.ffmpegPath = ffmpegPath
		c.ffprobePath = ffprobePath
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		run:         execRunner,
		lookPath:    exec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode converts inputPath to raw signed 16-bit little-endian PCM at the
// requested rate and channel count. The intermediate file is always removed.
func (c *Converter) Decode(ctx context.Context, inputPath string, sampleRate, channels int) (audio.Buffer, error) {
	name := filepath.Base(inputPath)
	if _, err := c.lookPath(c.ffmpegPath); err != nil {
		return audio.Buffer{}, &DecodeError{File: name, Err: fmt.Errorf("%w: %v", ErrConverterUnavailable, err)}
	}

	tmpFile, err := os.CreateTemp(c.tempDir, "decode-*.pcm")
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	output, err := c.run(ctx, c.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-y",
		tmpFile.Name(),
	)
	if err != nil {
		if ctx.Err() != nil {
			return audio.Buffer{}, ctx.Err()
		}
		return audio.Buffer{}, &DecodeError{
			File: name,
			Err:  fmt.Errorf("ffmpeg: %s: %w", strings.TrimSpace(string(output)), err),
		}
	}

	data, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return audio.Buffer{}, &DecodeError{File: name, Err: fmt.Errorf("read pcm: %w", err)}
	}

	const sampleWidth = 2
	frame := channels * sampleWidth
	data = data[:len(data)-len(data)%frame]

	return audio.Buffer{
		SampleRate:  sampleRate,
		Channels:    channels,
		SampleWidth: sampleWidth,
		Data:        data,
	}, nil
}
