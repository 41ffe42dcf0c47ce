package transcribe

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoMatch means the engine heard nothing it could turn into words.
// The assembler substitutes a placeholder and keeps going.
var ErrNoMatch = errors.New("speech not recognized")

// ServiceError is a fatal recognition failure for one chunk.
type ServiceError struct {
	Engine string
	Chunk  int
	Err    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s recognition failed at chunk %d: %v", e.Engine, e.Chunk, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Request is one chunk of raw PCM sent for recognition
type Request struct {
	PCM         []byte
	SampleRate  int
	SampleWidth int
	Channels    int
	Language    string // BCP-47, e.g. "en-US"
}

// Recognizer is the common interface for all speech recognition engines
type Recognizer interface {
	// Recognize returns the text heard in req, or ErrNoMatch.
	Recognize(ctx context.Context, req Request) (string, error)
	// Name returns the engine name
	Name() string
}
