package translate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/metrics"
)

// EngineResolver returns the engine name currently selected in settings.
type EngineResolver func() string

// Service manages translation engines
type Service struct {
	engines       map[string]Translator
	defaultEngine string
	resolver      EngineResolver
	metrics       *metrics.Metrics
	logger        *zap.SugaredLogger
}

// NewService creates a translation service. Engines are added with RegisterEngine.
func NewService(defaultEngine string, resolver EngineResolver, m *metrics.Metrics, logger *zap.SugaredLogger) *Service {
	return &Service{
		engines:       make(map[string]Translator),
		defaultEngine: defaultEngine,
		resolver:      resolver,
		metrics:       m,
		logger:        logger,
	}
}

// RegisterEngine adds an engine under its Name.
func (s *Service) RegisterEngine(engine Translator) {
	s.engines[engine.Name()] = engine
	s.logger.Infow("registered translation engine", "engine", engine.Name())
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

func (s *Service) currentEngine() string {
	if s.resolver != nil {
		if name := s.resolver(); name != "" {
			return name
		}
	}
	return s.defaultEngine
}

// Translate issues a single request to the selected engine. Every failure is
// returned as a *TranslationError. Blank input is returned as-is without a
// remote call.
func (s *Service) Translate(ctx context.Context, text, targetLang string) (string, error) {
	name := s.currentEngine()
	if !IsSupportedTarget(targetLang) {
		return "", &TranslationError{Engine: name, Target: targetLang, Err: ErrUnsupportedLanguage}
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	engine, ok := s.engines[name]
	if !ok {
		return "", &TranslationError{
			Engine: name,
			Target: targetLang,
			Err:    fmt.Errorf("unknown translation engine (available: %v)", s.Engines()),
		}
	}

	start := time.Now()
	out, err := engine.Translate(ctx, text, targetLang)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.RecordTranslation(name, "error", elapsed.Seconds())
		s.logger.Warnw("translation failed", "engine", name, "target", targetLang, "error", err)
		return "", &TranslationError{Engine: name, Target: targetLang, Err: err}
	}

	s.metrics.RecordTranslation(name, "ok", elapsed.Seconds())
	s.logger.Infow("translation complete", "engine", name, "target", targetLang,
		"chars_in", len(text), "chars_out", len(out), "elapsed", elapsed)
	return out, nil
}
