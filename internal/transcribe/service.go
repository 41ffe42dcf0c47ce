package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/audio"
	"github.com/audio-scribe/backend/internal/ffmpeg"
	"github.com/audio-scribe/backend/internal/job"
	"github.com/audio-scribe/backend/internal/metrics"
	"github.com/audio-scribe/backend/internal/translate"
)

// Decoder turns an uploaded file into PCM. *ffmpeg.Converter satisfies it.
type Decoder interface {
	ProbeAudio(ctx context.Context, path string) (*ffmpeg.AudioInfo, error)
	Decode(ctx context.Context, inputPath string, sampleRate, channels int) (audio.Buffer, error)
}

// TextTranslator is the translation step. *translate.Service satisfies it.
type TextTranslator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// UploadStore resolves and removes stored uploads. *storage.Uploads satisfies it.
type UploadStore interface {
	Path(name string) (string, error)
	Remove(name string) error
}

// Settings resolves runtime choices at the start of each job.
type Settings struct {
	Engine   func() string // recognition engine name
	Language func() string // spoken language
}

// Options carries the fixed pipeline parameters.
type Options struct {
	ChunkSeconds  int
	SampleRate    int
	Channels      int
	Language      string
	TargetLang    string
	Placeholder   string
	Pause         time.Duration
	DefaultEngine string
}

// Service manages recognition engines and processes transcription jobs
type Service struct {
	engines    map[string]Recognizer
	uploads    UploadStore
	decoder    Decoder
	translator TextTranslator
	settings   Settings
	opts       Options
	metrics    *metrics.Metrics
	logger     *zap.SugaredLogger
}

func NewService(uploads UploadStore, decoder Decoder, translator TextTranslator, settings Settings, opts Options, m *metrics.Metrics, logger *zap.SugaredLogger) *Service {
	if opts.DefaultEngine == "" {
		opts.DefaultEngine = "google"
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.Placeholder == "" {
		opts.Placeholder = DefaultPlaceholder
	}
	return &Service{
		engines:    make(map[string]Recognizer),
		uploads:    uploads,
		decoder:    decoder,
		translator: translator,
		settings:   settings,
		opts:       opts,
		metrics:    m,
		logger:     logger,
	}
}

// RegisterEngine adds a recognizer under its Name
func (s *Service) RegisterEngine(engine Recognizer) {
	s.engines[engine.Name()] = engine
	s.logger.Infow("registered recognition engine", "engine", engine.Name())
}

// Engines returns the registered engine names.
func (s *Service) Engines() []string {
	names := make([]string, 0, len(s.engines))
	for name := range s.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) resolveEngine(requested string) string {
	if requested != "" {
		return requested
	}
	if s.settings.Engine != nil {
		if name := s.settings.Engine(); name != "" {
			return name
		}
	}
	return s.opts.DefaultEngine
}

func (s *Service) resolveLanguage(requested string) string {
	if requested != "" {
		return requested
	}
	if s.settings.Language != nil {
		if lang := s.settings.Language(); lang != "" {
			return lang
		}
	}
	return s.opts.Language
}

// HandleJob runs one upload through decode, recognition and translation.
// The stored upload is removed however the job ends.
func (s *Service) HandleJob(ctx context.Context, j *job.Job, updateProgress func(int)) error {
	var params job.TranscribeParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}

	defer s.Cleanup(j)

	fullPath, err := s.uploads.Path(j.FilePath)
	if err != nil {
		return fmt.Errorf("resolve upload: %w", err)
	}
	if _, err := os.Stat(fullPath); err != nil {
		return fmt.Errorf("upload not found: %s", params.FileName)
	}

	engineName := s.resolveEngine(params.Engine)
	engine, ok := s.engines[engineName]
	if !ok {
		return fmt.Errorf("unknown recognition engine: %s (available: %v)", engineName, s.Engines())
	}

	targetLang := params.TargetLang
	if targetLang == "" {
		targetLang = s.opts.TargetLang
	}
	language := s.resolveLanguage(params.Language)

	log := s.logger.With("job", j.ID, "engine", engineName)
	log.Infow("starting transcription", "file", params.FileName, "language", language, "target", targetLang)
	start := time.Now()

	info, err := s.decoder.ProbeAudio(ctx, fullPath)
	if err != nil {
		s.metrics.RecordDecodeError()
		return err
	}

	buf, err := s.decoder.Decode(ctx, fullPath, s.opts.SampleRate, s.opts.Channels)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.RecordDecodeError()
		}
		return err
	}

	chunker, err := audio.NewChunker(buf, s.opts.ChunkSeconds)
	if err != nil {
		return fmt.Errorf("chunk audio: %w", err)
	}
	log.Infow("audio decoded", "codec", info.Codec, "duration", buf.Duration(), "chunks", chunker.Len())

	assembler := NewAssembler(engine, log,
		WithLanguage(language),
		WithPlaceholder(s.opts.Placeholder),
		WithPause(s.opts.Pause),
		WithMetrics(s.metrics),
	)
	res, err := assembler.Assemble(ctx, chunker, updateProgress)
	if err != nil {
		return err
	}
	log.Infow("transcription assembled", "chunks", res.Chunks, "misses", res.Misses, "chars", len(res.Transcript))

	out := job.TranscribeResult{
		Transcript: res.Transcript,
		TargetLang: targetLang,
		Chunks:     res.Chunks,
		Misses:     res.Misses,
		Duration:   buf.Duration().Seconds(),
		Engine:     engineName,
	}

	translation, err := s.translator.Translate(ctx, res.Transcript, targetLang)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// transcript is kept; the UI shows the translation as unavailable
		out.TranslationError = UserMessage(err)
		log.Warnw("translation failed, keeping transcript", "error", err)
	} else {
		out.Translation = translation
	}

	out.ElapsedTime = time.Since(start).Seconds()
	resultJSON, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	j.Result = resultJSON

	log.Infow("transcription complete", "elapsed", time.Since(start))
	return nil
}

// Cleanup removes the job's stored upload. The queue calls it for jobs that
// end without reaching HandleJob.
func (s *Service) Cleanup(j *job.Job) {
	if err := s.uploads.Remove(j.FilePath); err != nil {
		s.logger.Warnw("failed to remove upload", "job", j.ID, "file", j.FilePath, "error", err)
	}
}

// UserMessage maps pipeline errors to text suitable for the UI.
func UserMessage(err error) string {
	var decodeErr *ffmpeg.DecodeError
	var serviceErr *ServiceError
	var translationErr *translate.TranslationError

	switch {
	case errors.Is(err, ffmpeg.ErrConverterUnavailable):
		return "Audio conversion is unavailable: ffmpeg is not installed on the server."
	case errors.Is(err, ffmpeg.ErrNoAudioStream):
		return "The uploaded file contains no audio."
	case errors.As(err, &decodeErr):
		return "The uploaded file could not be decoded. Please upload a valid MP3 file."
	case errors.As(err, &serviceErr):
		return fmt.Sprintf("Speech recognition service error: %v", serviceErr.Err)
	case errors.Is(err, translate.ErrUnsupportedLanguage):
		return "Translation failed: unsupported target language."
	case errors.As(err, &translationErr):
		return fmt.Sprintf("Translation failed: %v", translationErr.Err)
	default:
		return err.Error()
	}
}
