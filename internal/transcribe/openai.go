package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/audio-scribe/backend/internal/audio"
)

// OpenAIWhisperClient uses the OpenAI audio transcription API
type OpenAIWhisperClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIWhisperClient(apiKey string) *OpenAIWhisperClient {
	return NewOpenAIWhisperClientWithConfig(openai.DefaultConfig(apiKey))
}

// NewOpenAIWhisperClientWithConfig allows a custom base URL or HTTP client.
func NewOpenAIWhisperClientWithConfig(cfg openai.ClientConfig) *OpenAIWhisperClient {
	return &OpenAIWhisperClient{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.Whisper1,
	}
}

func (c *OpenAIWhisperClient) Name() string {
	return "openai"
}

func (c *OpenAIWhisperClient) Recognize(ctx context.Context, req Request) (string, error) {
	wav, err := audio.EncodeWAV(req.PCM, req.SampleRate, req.Channels, req.SampleWidth)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wav),
		Language: whisperLanguage(req.Language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoMatch
	}
	return text, nil
}
