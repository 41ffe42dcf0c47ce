package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const googleSpeechURL = "https://speech.googleapis.com/v1/speech:recognize"

// GoogleRecognizer calls the Cloud Speech-to-Text v1 recognize endpoint
type GoogleRecognizer struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewGoogleRecognizer(apiKey string) *GoogleRecognizer {
	return &GoogleRecognizer{
		apiKey:   apiKey,
		endpoint: googleSpeechURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

// WithEndpoint overrides the recognize URL.
func (g *GoogleRecognizer) WithEndpoint(u string) *GoogleRecognizer {
	g.endpoint = u
	return g
}

func (g *GoogleRecognizer) Name() string {
	return "google"
}

type googleRecognizeRequest struct {
	Config struct {
		Encoding          string `json:"encoding"`
		SampleRateHertz   int    `json:"sampleRateHertz"`
		AudioChannelCount int    `json:"audioChannelCount,omitempty"`
		LanguageCode      string `json:"languageCode"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("Google API key not configured")
	}
	if req.SampleWidth != 2 {
		return "", fmt.Errorf("LINEAR16 requires 2-byte samples, got %d", req.SampleWidth)
	}

	var body googleRecognizeRequest
	body.Config.Encoding = "LINEAR16"
	body.Config.SampleRateHertz = req.SampleRate
	body.Config.AudioChannelCount = req.Channels
	body.Config.LanguageCode = req.Language
	body.Audio.Content = base64.StdEncoding.EncodeToString(req.PCM)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	// The key travels in a header; request errors quote the URL and end up in job errors.
	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("speech API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed googleRecognizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	// Results cover consecutive portions of the audio; take the top
	// alternative of each.
	var parts []string
	for _, r := range parsed.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoMatch
	}
	return strings.Join(parts, " "), nil
}
