package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/audio-scribe/backend/internal/translate"
)

type TranslateHandler struct {
	service *translate.Service
}

func NewTranslateHandler(service *translate.Service) *TranslateHandler {
	return &TranslateHandler{service: service}
}

type translateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Translation string `json:"translation"`
	TargetLang  string `json:"target_lang"`
}

// Translate re-translates an existing transcript when the user picks another
// language.
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !translate.IsSupportedTarget(req.TargetLang) {
		jsonError(w, "unsupported target language: "+req.TargetLang, http.StatusBadRequest)
		return
	}

	out, err := h.service.Translate(r.Context(), req.Text, req.TargetLang)
	if err != nil {
		var tErr *translate.TranslationError
		if errors.As(err, &tErr) {
			jsonError(w, "translation failed: "+tErr.Err.Error(), http.StatusBadGateway)
			return
		}
		jsonError(w, "translation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, translateResponse{Translation: out, TargetLang: req.TargetLang}, http.StatusOK)
}
