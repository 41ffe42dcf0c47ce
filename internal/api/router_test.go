package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/config"
	"github.com/audio-scribe/backend/internal/db"
	"github.com/audio-scribe/backend/internal/ffmpeg"
	"github.com/audio-scribe/backend/internal/job"
	"github.com/audio-scribe/backend/internal/metrics"
	"github.com/audio-scribe/backend/internal/storage"
	"github.com/audio-scribe/backend/internal/transcribe"
	"github.com/audio-scribe/backend/internal/translate"
)

const probeJSON = `{"format":{"format_name":"mp3","duration":"2.0"},"streams":[{"index":0,"codec_name":"mp3","codec_type":"audio","sample_rate":"44100","channels":2}]}`

// fakeFFmpeg answers ffprobe with probeJSON and makes ffmpeg write pcm.
func fakeFFmpeg(pcm []byte) ffmpeg.Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte(probeJSON), nil
		}
		return nil, os.WriteFile(args[len(args)-1], pcm, 0644)
	}
}

type fakeRecognizer struct {
	texts []string
	err   error
	calls int
}

func (f *fakeRecognizer) Name() string { return "google" }

func (f *fakeRecognizer) Recognize(ctx context.Context, req transcribe.Request) (string, error) {
	defer func() { f.calls++ }()
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.texts) || f.texts[f.calls] == "" {
		return "", transcribe.ErrNoMatch
	}
	return f.texts[f.calls], nil
}

type fakeTranslator struct {
	err error
}

func (f *fakeTranslator) Name() string { return "gemini" }

func (f *fakeTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "[" + targetLang + "] " + text, nil
}

type testServer struct {
	handler    http.Handler
	uploadDir  string
	recognizer *fakeRecognizer
	translator *fakeTranslator
	database   *db.Database
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop().Sugar()

	cfg := &config.Config{
		GoogleAPIKey:   "test-key",
		MaxUploadBytes: maxUpload,
		Pipeline: config.PipelineConfig{
			ChunkSeconds:   1,
			SampleRate:     4,
			Channels:       1,
			SampleWidth:    2,
			Language:       "en-US",
			TargetLanguage: "pt-BR",
			Placeholder:    "[inaudible]",
		},
	}

	database, err := db.NewSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	uploads, err := storage.NewUploads(filepath.Join(dir, "uploads"), maxUpload)
	if err != nil {
		t.Fatal(err)
	}

	ts := &testServer{
		uploadDir:  uploads.Dir(),
		recognizer: &fakeRecognizer{texts: []string{"hello", "", "world"}},
		translator: &fakeTranslator{},
		database:   database,
	}

	translator := translate.NewService("gemini", nil, m, logger)
	translator.RegisterEngine(ts.translator)

	converter := ffmpeg.NewConverter(
		ffmpeg.WithRunner(fakeFFmpeg(make([]byte, 24))), // three 1s chunks at 4 Hz
		ffmpeg.WithLookPath(func(name string) (string, error) { return name, nil }),
		ffmpeg.WithTempDir(dir),
	)

	transcriber := transcribe.NewService(uploads, converter, translator, transcribe.Settings{}, transcribe.Options{
		ChunkSeconds: cfg.Pipeline.ChunkSeconds,
		SampleRate:   cfg.Pipeline.SampleRate,
		Channels:     cfg.Pipeline.Channels,
		TargetLang:   cfg.Pipeline.TargetLanguage,
	}, m, logger)
	transcriber.RegisterEngine(ts.recognizer)

	queue := job.NewJobQueue(database.DB(), m, logger)
	queue.RegisterHandler(job.JobTranscribe, transcriber.HandleJob)
	queue.RegisterCleanup(job.JobTranscribe, transcriber.Cleanup)
	queue.SetErrorMessage(transcribe.UserMessage)

	t.Cleanup(func() {
		queue.Stop()
		database.Close()
	})

	ts.handler = NewRouter(Deps{
		Config:      cfg,
		Database:    database,
		Queue:       queue,
		Uploads:     uploads,
		Transcriber: transcriber,
		Translator:  translator,
		Metrics:     m,
		Gatherer:    reg,
		Logger:      logger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return buf.Bytes(), w.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, fields map[string]string) *job.Job {
	t.Helper()
	body, ct := multipartUpload(t, "talk.mp3", []byte("ID3fake"), fields)
	rec := ts.do(t, "POST", "/api/transcriptions", body, ct)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var j job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &j); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return &j
}

func (ts *testServer) waitJob(t *testing.T, id string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := ts.do(t, "GET", "/api/jobs/"+id, nil, "")
		var j job.Job
		json.Unmarshal(rec.Body.Bytes(), &j)
		if j.Status.Finished() {
			return &j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func TestUploadTranscribeAndTranslate(t *testing.T) {
	ts := newTestServer(t, 0)

	created := ts.upload(t, map[string]string{"target_lang": "fr"})
	if created.Status != job.StatusPending || created.Type != job.JobTranscribe {
		t.Errorf("unexpected created job %+v", created)
	}

	j := ts.waitJob(t, created.ID)
	if j.Status != job.StatusCompleted {
		t.Fatalf("job ended %s: %s", j.Status, j.Error)
	}
	if j.Progress != 100 {
		t.Errorf("expected progress 100, got %d", j.Progress)
	}

	var res job.TranscribeResult
	if err := json.Unmarshal(j.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Transcript != "hello [inaudible] world" {
		t.Errorf("unexpected transcript %q", res.Transcript)
	}
	if res.Translation != "[fr] hello [inaudible] world" || res.TargetLang != "fr" {
		t.Errorf("unexpected translation %q (%s)", res.Translation, res.TargetLang)
	}
	if res.Chunks != 3 || res.Misses != 1 {
		t.Errorf("unexpected stats %+v", res)
	}

	entries, _ := os.ReadDir(ts.uploadDir)
	if len(entries) != 0 {
		t.Errorf("upload should be removed after the job, found %d files", len(entries))
	}
}

func TestUploadRecognitionFailure(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.recognizer.err = errors.New("API key not valid")

	j := ts.waitJob(t, ts.upload(t, nil).ID)
	if j.Status != job.StatusFailed {
		t.Fatalf("expected failed job, got %s", j.Status)
	}
	if !strings.Contains(j.Error, "Speech recognition service error") {
		t.Errorf("unexpected error message %q", j.Error)
	}
	if ts.recognizer.calls != 1 {
		t.Errorf("remaining chunks must not be requested, got %d calls", ts.recognizer.calls)
	}
}

func TestUploadTranslationFailureStillCompletes(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.translator.err = errors.New("model overloaded")

	j := ts.waitJob(t, ts.upload(t, nil).ID)
	if j.Status != job.StatusCompleted {
		t.Fatalf("expected completed job, got %s: %s", j.Status, j.Error)
	}
	var res job.TranscribeResult
	json.Unmarshal(j.Result, &res)
	if res.Transcript == "" || res.Translation != "" || !strings.Contains(res.TranslationError, "model overloaded") {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TargetLang != "pt-BR" {
		t.Errorf("expected default target, got %q", res.TargetLang)
	}
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, 16)

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		status   int
	}{
		{"not mp3", "notes.txt", []byte("hello"), nil, http.StatusUnsupportedMediaType},
		{"bad target", "a.mp3", []byte("ID3"), map[string]string{"target_lang": "ja"}, http.StatusBadRequest},
		{"too large", "a.mp3", bytes.Repeat([]byte("x"), 64), nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartUpload(t, tt.filename, tt.data, tt.fields)
			rec := ts.do(t, "POST", "/api/transcriptions", body, ct)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	rec := ts.do(t, "POST", "/api/transcriptions", []byte("plain"), "text/plain")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart body: expected 400, got %d", rec.Code)
	}
}

func TestTranslateEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, "POST", "/api/translate", []byte(`{"text":"good morning","target_lang":"de"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["translation"] != "[de] good morning" || out["target_lang"] != "de" {
		t.Errorf("unexpected response %v", out)
	}

	rec = ts.do(t, "POST", "/api/translate", []byte(`{"text":"x","target_lang":"xx"}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported language: expected 400, got %d", rec.Code)
	}

	ts.translator.err = errors.New("quota")
	rec = ts.do(t, "POST", "/api/translate", []byte(`{"text":"x","target_lang":"es"}`), "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("engine failure: expected 502, got %d", rec.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, "PUT", "/api/settings", []byte(`{"gemini_model":"gemini-2.0-flash","recognition_engine":"google"}`), "application/json")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := ts.database.GetSetting(db.SettingGeminiModel, ""); got != "gemini-2.0-flash" {
		t.Errorf("setting not saved, got %q", got)
	}

	for _, body := range []string{`{"admin":"x"}`, `{"recognition_engine":"nope"}`, `not json`} {
		rec = ts.do(t, "PUT", "/api/settings", []byte(body), "application/json")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}

	rec = ts.do(t, "GET", "/api/settings", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var settings []struct {
		Key     string   `json:"key"`
		Value   string   `json:"value"`
		Options []string `json:"options"`
	}
	json.Unmarshal(rec.Body.Bytes(), &settings)
	found := false
	for _, s := range settings {
		if s.Key == db.SettingRecognitionEngine {
			found = true
			if s.Value != "google" || len(s.Options) != 1 || s.Options[0] != "google" {
				t.Errorf("unexpected recognition setting %+v", s)
			}
		}
	}
	if !found {
		t.Error("recognition_engine missing from settings")
	}
}

func TestJobEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, "GET", "/api/jobs/does-not-exist", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec = ts.do(t, "DELETE", "/api/jobs/does-not-exist", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on cancel, got %d", rec.Code)
	}

	created := ts.upload(t, nil)
	ts.waitJob(t, created.ID)

	rec = ts.do(t, "GET", "/api/jobs", nil, "")
	var jobs []job.Job
	json.Unmarshal(rec.Body.Bytes(), &jobs)
	if len(jobs) != 1 || jobs[0].ID != created.ID {
		t.Errorf("unexpected job list %+v", jobs)
	}
}

func TestMetaEndpoints(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, "GET", "/api/health", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, "GET", "/api/languages", nil, "")
	var langs struct {
		Default   string               `json:"default"`
		Languages []translate.Language `json:"languages"`
	}
	json.Unmarshal(rec.Body.Bytes(), &langs)
	if langs.Default != "pt-BR" || len(langs.Languages) != 5 {
		t.Errorf("unexpected languages %+v", langs)
	}

	rec = ts.do(t, "GET", "/", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<html") {
		t.Errorf("index: %d", rec.Code)
	}

	ts.do(t, "GET", "/api/health", nil, "")
	rec = ts.do(t, "GET", "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "scribe_http_requests_total") {
		t.Errorf("metrics missing http counter: %d", rec.Code)
	}
}
