package translate

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedLanguage is returned for a target outside SupportedTargets.
var ErrUnsupportedLanguage = errors.New("unsupported target language")

// TranslationError wraps any failure of the translation backend. Callers
// show the transcript anyway and report the translation as unavailable.
type TranslationError struct {
	Engine string
	Target string
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate to %s with %s: %v", e.Target, e.Engine, e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Translator is the common interface for all translation engines
type Translator interface {
	// Translate returns text translated to targetLang, verbatim as the engine produced it.
	Translate(ctx context.Context, text, targetLang string) (string, error)
	// Name returns the engine name
	Name() string
}
