package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/audio-scribe/backend/internal/db"
)

// settingsKeys defines which keys are allowed and their display metadata
var settingsKeys = []SettingDef{
	{Key: db.SettingRecognitionEngine, Label: "Recognition Engine", Group: "recognition", Placeholder: "google"},
	{Key: db.SettingRecognitionLanguage, Label: "Spoken Language", Group: "recognition", Placeholder: "en-US"},
	{Key: db.SettingTranslateEngine, Label: "Translation Engine", Group: "translation", Placeholder: "gemini"},
	{Key: db.SettingGeminiModel, Label: "Gemini Model", Group: "translation", Placeholder: "gemini-1.5-flash"},
}

type SettingDef struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Group       string   `json:"group"`
	Placeholder string   `json:"placeholder"`
	Options     []string `json:"options,omitempty"`
}

type SettingsHandler struct {
	database           *db.Database
	recognitionEngines func() []string
	translateEngines   func() []string
}

func NewSettingsHandler(database *db.Database, recognitionEngines, translateEngines func() []string) *SettingsHandler {
	return &SettingsHandler{
		database:           database,
		recognitionEngines: recognitionEngines,
		translateEngines:   translateEngines,
	}
}

func (h *SettingsHandler) options(key string) []string {
	switch key {
	case db.SettingRecognitionEngine:
		return h.recognitionEngines()
	case db.SettingTranslateEngine:
		return h.translateEngines()
	}
	return nil
}

// GetSettings returns every known setting with its current value
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.database.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	type SettingResponse struct {
		SettingDef
		Value    string `json:"value"`
		HasValue bool   `json:"has_value"`
	}

	result := make([]SettingResponse, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		def.Options = h.options(def.Key)
		val := all[def.Key]
		result = append(result, SettingResponse{
			SettingDef: def,
			Value:      val,
			HasValue:   val != "",
		})
	}

	jsonResponse(w, result, http.StatusOK)
}

// UpdateSettings saves settings from the request body. An empty value clears
// the setting so the configured default applies again.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Validate everything before writing anything
	for key, value := range updates {
		if !db.IsSettingKey(key) {
			jsonError(w, "unknown setting: "+key, http.StatusBadRequest)
			return
		}
		value = strings.TrimSpace(value)
		if opts := h.options(key); value != "" && opts != nil && !contains(opts, value) {
			jsonError(w, "invalid value for "+key+": "+value, http.StatusBadRequest)
			return
		}
	}

	for key, value := range updates {
		value = strings.TrimSpace(value)
		var err error
		if value == "" {
			err = h.database.DeleteSetting(key)
		} else {
			err = h.database.SetSetting(key, value)
		}
		if err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
