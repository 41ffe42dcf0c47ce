package transcribe

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/audio"
	"github.com/audio-scribe/backend/internal/metrics"
)

const (
	DefaultLanguage    = "en-US"
	DefaultPlaceholder = "[inaudible]"
)

// ChunkSource yields audio chunks in order. *audio.Chunker satisfies it.
type ChunkSource interface {
	Len() int
	Format() audio.Buffer
	Next() (audio.Chunk, bool)
}

// Result is the assembled transcript
type Result struct {
	Transcript string
	Fragments  []string
	Chunks     int
	Misses     int
}

// Assembler runs chunks through a Recognizer one at a time.
type Assembler struct {
	recognizer  Recognizer
	language    string
	placeholder string
	pause       time.Duration
	metrics     *metrics.Metrics
	logger      *zap.SugaredLogger
}

type AssemblerOption func(*Assembler)

func WithLanguage(lang string) AssemblerOption {
	return func(a *Assembler) {
		if lang != "" {
			a.language = lang
		}
	}
}

func WithPlaceholder(p string) AssemblerOption {
	return func(a *Assembler) { a.placeholder = p }
}

// WithPause sets the sleep after each chunk. Zero disables it.
func WithPause(d time.Duration) AssemblerOption {
	return func(a *Assembler) { a.pause = d }
}

func WithMetrics(m *metrics.Metrics) AssemblerOption {
	return func(a *Assembler) { a.metrics = m }
}

func NewAssembler(r Recognizer, logger *zap.SugaredLogger, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		recognizer:  r,
		language:    DefaultLanguage,
		placeholder: DefaultPlaceholder,
		pause:       100 * time.Millisecond,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble recognizes every chunk in order and joins the fragments with single
// spaces. progress receives round(i/N*100) after chunk i of N. A miss becomes
// the placeholder; any other recognizer error aborts with a *ServiceError and
// no partial transcript.
func (a *Assembler) Assemble(ctx context.Context, chunks ChunkSource, progress func(int)) (*Result, error) {
	total := chunks.Len()
	format := chunks.Format()
	res := &Result{Fragments: make([]string, 0, total)}

	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, ok := chunks.Next()
		if !ok {
			break
		}

		start := time.Now()
		text, err := a.recognizer.Recognize(ctx, Request{
			PCM:         chunk.Data,
			SampleRate:  format.SampleRate,
			SampleWidth: format.SampleWidth,
			Channels:    format.Channels,
			Language:    a.language,
		})
		elapsed := time.Since(start)

		switch {
		case err == nil:
			res.Fragments = append(res.Fragments, text)
			a.metrics.RecordChunk(chunk.Duration.Seconds(), elapsed.Seconds(), false)
		case errors.Is(err, ErrNoMatch):
			res.Fragments = append(res.Fragments, a.placeholder)
			res.Misses++
			a.metrics.RecordChunk(chunk.Duration.Seconds(), elapsed.Seconds(), true)
			a.logger.Debugw("chunk not recognized", "chunk", chunk.Index)
		default:
			a.metrics.RecordRecognitionFailure(elapsed.Seconds())
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &ServiceError{Engine: a.recognizer.Name(), Chunk: chunk.Index, Err: err}
		}
		res.Chunks++

		if progress != nil {
			progress(percent(i, total))
		}

		if a.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.pause):
			}
		}
	}

	res.Transcript = strings.TrimSpace(strings.Join(res.Fragments, " "))
	return res, nil
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
