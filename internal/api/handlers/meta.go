package handlers

import (
	"net/http"

	"github.com/audio-scribe/backend/internal/translate"
)

type MetaHandler struct {
	defaultTarget      string
	recognitionEngines func() []string
	translateEngines   func() []string
}

func NewMetaHandler(defaultTarget string, recognitionEngines, translateEngines func() []string) *MetaHandler {
	return &MetaHandler{
		defaultTarget:      defaultTarget,
		recognitionEngines: recognitionEngines,
		translateEngines:   translateEngines,
	}
}

func (h *MetaHandler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Languages returns the translation targets for the language selector
func (h *MetaHandler) Languages(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"default":   h.defaultTarget,
		"languages": translate.SupportedTargets,
	}, http.StatusOK)
}

// Engines lists the registered recognition and translation engines
func (h *MetaHandler) Engines(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string][]string{
		"recognition": h.recognitionEngines(),
		"translation": h.translateEngines(),
	}, http.StatusOK)
}
