package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const deeplAPIURL = "https://api-free.deepl.com/v2/translate"

// DeepLTranslator translates text using the DeepL API
type DeepLTranslator struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewDeepLTranslator(apiKey string) *DeepLTranslator {
	return &DeepLTranslator{
		apiKey:   apiKey,
		endpoint: deeplAPIURL,
		httpClient: &http.Client{
			Timeout: 1 * time.Minute,
		},
	}
}

// WithEndpoint overrides the translate endpoint (e.g. the paid API host).
func (d *DeepLTranslator) WithEndpoint(u string) *DeepLTranslator {
	d.endpoint = u
	return d
}

func (d *DeepLTranslator) Name() string {
	return "deepl"
}

func (d *DeepLTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if d.apiKey == "" {
		return "", fmt.Errorf("DeepL API key not configured")
	}

	form := url.Values{}
	form.Add("text", text)
	form.Set("target_lang", deeplLangCode(targetLang))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("DeepL API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DeepL API error (status %d): %s", resp.StatusCode, string(body))
	}

	var deeplResp struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}

	if err := json.Unmarshal(body, &deeplResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(deeplResp.Translations) == 0 {
		return "", fmt.Errorf("empty DeepL response")
	}

	return deeplResp.Translations[0].Text, nil
}

// deeplLangCode converts selector codes to DeepL format
func deeplLangCode(code string) string {
	mapping := map[string]string{
		"pt-BR": "PT-BR",
		"es":    "ES",
		"fr":    "FR",
		"de":    "DE",
		"it":    "IT",
	}
	if mapped, ok := mapping[code]; ok {
		return mapped
	}
	return strings.ToUpper(code)
}
