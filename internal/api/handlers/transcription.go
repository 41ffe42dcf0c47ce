package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/job"
	"github.com/audio-scribe/backend/internal/storage"
	"github.com/audio-scribe/backend/internal/translate"
)

// multipartMemory is how much of a form is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

type TranscriptionHandler struct {
	uploads       *storage.Uploads
	queue         *job.JobQueue
	defaultTarget string
	maxBytes      int64
	logger        *zap.SugaredLogger
}

func NewTranscriptionHandler(uploads *storage.Uploads, queue *job.JobQueue, defaultTarget string, maxBytes int64, logger *zap.SugaredLogger) *TranscriptionHandler {
	return &TranscriptionHandler{
		uploads:       uploads,
		queue:         queue,
		defaultTarget: defaultTarget,
		maxBytes:      maxBytes,
		logger:        logger,
	}
}

// Create accepts a multipart upload (field "file", optional "target_lang"
// and "language"), stores it and queues a transcription job.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		// form fields and boundaries need a little headroom
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	targetLang := r.FormValue("target_lang")
	if targetLang == "" {
		targetLang = h.defaultTarget
	}
	if !translate.IsSupportedTarget(targetLang) {
		jsonError(w, "unsupported target language: "+targetLang, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	entry, err := h.uploads.Save(file, header.Filename, header.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, storage.ErrUnsupportedFormat):
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	case errors.Is(err, storage.ErrTooLarge):
		jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		h.logger.Errorw("failed to store upload", "file", header.Filename, "error", err)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}

	j, err := h.queue.Enqueue(job.JobTranscribe, entry.Name, job.TranscribeParams{
		FileName:   entry.OriginalName,
		TargetLang: targetLang,
		Language:   r.FormValue("language"),
	})
	if err != nil {
		h.uploads.Remove(entry.Name)
		jsonError(w, "failed to queue job: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	h.logger.Infow("upload accepted", "job", j.ID, "file", entry.OriginalName, "bytes", entry.Size, "target", targetLang)
	jsonResponse(w, j, http.StatusAccepted)
}
