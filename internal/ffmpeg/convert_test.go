package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func foundBinary(name string) (string, error) { return "/usr/bin/" + name, nil }

func missingBinary(name string) (string, error) { return "", errors.New("executable file not found in $PATH") }

// pcmRunner fakes ffmpeg by writing pcm to the output path (the last argument).
func pcmRunner(pcm []byte, calls *[][]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, append([]string{name}, args...))
		out := args[len(args)-1]
		return nil, os.WriteFile(out, pcm, 0644)
	}
}

func contains(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestDecodeProducesBuffer(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	conv := NewConverter(
		WithRunner(pcmRunner(make([]byte, 64001), &calls)),
		WithLookPath(foundBinary),
		WithTempDir(dir),
	)

	buf, err := conv.Decode(context.Background(), "/uploads/talk.mp3", 16000, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if buf.SampleRate != 16000 || buf.Channels != 1 || buf.SampleWidth != 2 {
		t.Errorf("unexpected format: %+v", buf)
	}
	if len(buf.Data) != 64000 {
		t.Errorf("partial trailing sample should be dropped, got %d bytes", len(buf.Data))
	}

	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(calls))
	}
	args := calls[0]
	if args[0] != "ffmpeg" {
		t.Errorf("expected ffmpeg, got %s", args[0])
	}
	if !contains(args, "-ar", "16000") || !contains(args, "-ac", "1") || !contains(args, "-f", "s16le") {
		t.Errorf("missing output format flags: %v", args)
	}
	if !contains(args, "-i", "/uploads/talk.mp3") {
		t.Errorf("missing input path: %v", args)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temporary PCM file was not removed: %v", entries)
	}
}

func TestDecodeConverterFailure(t *testing.T) {
	dir := t.TempDir()
	conv := NewConverter(
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		}),
		WithLookPath(foundBinary),
		WithTempDir(dir),
	)

	_, err := conv.Decode(context.Background(), filepath.Join(dir, "notes.txt"), 16000, 1)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.File != "notes.txt" {
		t.Errorf("expected file name notes.txt, got %q", decodeErr.File)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temporary PCM file was not removed after failure: %v", entries)
	}
}

func TestDecodeMissingConverter(t *testing.T) {
	called := false
	conv := NewConverter(
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			called = true
			return nil, nil
		}),
		WithLookPath(missingBinary),
	)

	_, err := conv.Decode(context.Background(), "talk.mp3", 16000, 1)
	if !errors.Is(err, ErrConverterUnavailable) {
		t.Fatalf("expected ErrConverterUnavailable, got %v", err)
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError wrapper, got %T", err)
	}
	if called {
		t.Error("runner should not be invoked when ffmpeg is missing")
	}
}

func TestProbeAudio(t *testing.T) {
	probeJSON := `{
		"format": {"filename": "talk.mp3", "format_name": "mp3", "duration": "95.500000", "bit_rate": "128000"},
		"streams": [
			{"index": 0, "codec_name": "mjpeg", "codec_type": "video"},
			{"index": 1, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
		]
	}`
	conv := NewConverter(
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if name != "ffprobe" {
				t.Errorf("expected ffprobe, got %s", name)
			}
			return []byte(probeJSON), nil
		}),
		WithLookPath(foundBinary),
	)

	info, err := conv.ProbeAudio(context.Background(), "talk.mp3")
	if err != nil {
		t.Fatalf("ProbeAudio failed: %v", err)
	}
	if info.Codec != "mp3" || info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Duration != 95500*time.Millisecond {
		t.Errorf("expected 95.5s, got %v", info.Duration)
	}
}

func TestProbeAudioWithoutAudioStream(t *testing.T) {
	conv := NewConverter(
		WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte(`{"format": {"format_name": "png_pipe"}, "streams": [{"index": 0, "codec_type": "video"}]}`), nil
		}),
		WithLookPath(foundBinary),
	)

	_, err := conv.ProbeAudio(context.Background(), "cover.png")
	if !errors.Is(err, ErrNoAudioStream) {
		t.Fatalf("expected ErrNoAudioStream, got %v", err)
	}
}
