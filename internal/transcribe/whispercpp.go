package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/audio-scribe/backend/internal/audio"
)

// WhisperCppClient talks to the whisper.cpp HTTP server (whisper-server)
type WhisperCppClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewWhisperCppClient creates a client for the whisper.cpp server
func NewWhisperCppClient(baseURL string) *WhisperCppClient {
	return &WhisperCppClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *WhisperCppClient) Name() string {
	return "whisper.cpp"
}

// Recognize wraps the chunk as WAV and posts it to /inference
func (c *WhisperCppClient) Recognize(ctx context.Context, req Request) (string, error) {
	wav, err := audio.EncodeWAV(req.PCM, req.SampleRate, req.Channels, req.SampleWidth)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("response_format", "json")
	writer.WriteField("temperature", "0.0")
	if lang := whisperLanguage(req.Language); lang != "" {
		writer.WriteField("language", lang)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/inference", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper server request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper server: %s", out.Error)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" || isBlankAudioMarker(text) {
		return "", ErrNoMatch
	}
	return text, nil
}

// whisperLanguage reduces a BCP-47 tag to the ISO-639-1 code whisper expects.
func whisperLanguage(tag string) string {
	if tag == "" || tag == "auto" {
		return ""
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// isBlankAudioMarker matches whisper's non-speech annotations.
func isBlankAudioMarker(text string) bool {
	switch strings.ToUpper(strings.Trim(text, "[]() ")) {
	case "BLANK_AUDIO", "SILENCE", "NO SPEECH":
		return true
	}
	return false
}
