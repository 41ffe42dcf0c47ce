package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiModel is the frontend-friendly model info
type GeminiModel struct {
	ID          string `json:"id"`           // e.g. "gemini-1.5-flash"
	DisplayName string `json:"display_name"` // e.g. "Gemini 1.5 Flash"
	Description string `json:"description"`
}

type GeminiModelsHandler struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu           sync.Mutex
	cachedModels []GeminiModel
	cacheTime    time.Time
}

func NewGeminiModelsHandler(apiKey string) *GeminiModelsHandler {
	return &GeminiModelsHandler{
		apiKey:  apiKey,
		baseURL: geminiModelsURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the handler at a different models endpoint.
func (h *GeminiModelsHandler) WithBaseURL(u string) *GeminiModelsHandler {
	h.baseURL = u
	return h
}

// ListModels fetches the Gemini models usable for translation
func (h *GeminiModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		jsonResponse(w, []GeminiModel{}, http.StatusOK)
		return
	}

	models, err := h.getModels(r)
	if err != nil {
		jsonError(w, "failed to fetch Gemini models: "+err.Error(), http.StatusBadGateway)
		return
	}

	jsonResponse(w, models, http.StatusOK)
}

func (h *GeminiModelsHandler) getModels(r *http.Request) ([]GeminiModel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Return cache if fresh (1h)
	if len(h.cachedModels) > 0 && time.Since(h.cacheTime) < 1*time.Hour {
		return h.cachedCopy(), nil
	}

	req, err := http.NewRequestWithContext(r.Context(), "GET", h.baseURL+"?pageSize=100", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		if len(h.cachedModels) > 0 {
			return h.cachedCopy(), nil
		}
		return nil, fmt.Errorf("Google API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if len(h.cachedModels) > 0 {
			return h.cachedCopy(), nil
		}
		return nil, fmt.Errorf("Google API: status %d", resp.StatusCode)
	}

	var apiResp struct {
		Models []struct {
			Name                       string   `json:"name"` // "models/gemini-1.5-flash"
			DisplayName                string   `json:"displayName"`
			Description                string   `json:"description"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("parse Google API response: %w", err)
	}

	models := []GeminiModel{}
	seen := make(map[string]bool)
	for _, m := range apiResp.Models {
		if !contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}

		id := strings.TrimPrefix(m.Name, "models/")
		if !strings.HasPrefix(id, "gemini-") || strings.Contains(id, "embedding") {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		models = append(models, GeminiModel{
			ID:          id,
			DisplayName: m.DisplayName,
			Description: m.Description,
		})
	}

	// newer versions first
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})

	h.cachedModels = models
	h.cacheTime = time.Now()
	return h.cachedCopy(), nil
}

func (h *GeminiModelsHandler) cachedCopy() []GeminiModel {
	result := make([]GeminiModel, len(h.cachedModels))
	copy(result, h.cachedModels)
	return result
}
