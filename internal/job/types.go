package job

import (
	"context"
	"encoding/json"
	"time"
)

// JobType represents the kind of job
type JobType string

const (
	JobTranscribe JobType = "transcribe"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job represents one uploaded file moving through the pipeline
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	FilePath    string          `json:"file_path"` // stored upload, relative to the upload dir
	Params      json.RawMessage `json:"params"`
	Progress    int             `json:"progress"` // 0-100
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// TranscribeParams are parameters for a transcription job
type TranscribeParams struct {
	FileName   string `json:"file_name"`          // name the user uploaded
	TargetLang string `json:"target_lang"`        // "pt-BR", "es", "fr", "de", "it"
	Engine     string `json:"engine,omitempty"`   // recognition engine; empty uses settings
	Language   string `json:"language,omitempty"` // spoken language, e.g. "en-US"
}

// TranscribeResult is the output of a finished transcription
type TranscribeResult struct {
	Transcript       string  `json:"transcript"`
	Translation      string  `json:"translation"`
	TargetLang       string  `json:"target_lang"`
	TranslationError string  `json:"translation_error,omitempty"`
	Chunks           int     `json:"chunks"`
	Misses           int     `json:"misses"`
	Duration         float64 `json:"duration"`    // source audio length in seconds
	ElapsedTime      float64 `json:"elapsed"`     // processing time in seconds
	Engine           string  `json:"engine"`
}

// JobHandler processes a job. It may set job.Result before returning nil.
type JobHandler func(ctx context.Context, job *Job, updateProgress func(int)) error
