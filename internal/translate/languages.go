package translate

import "fmt"

// Language is an entry in the target language selector.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedTargets is the fixed set of translation targets, in selector order.
var SupportedTargets = []Language{
	{Code: "pt-BR", Name: "Brazilian Portuguese"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
}

// IsSupportedTarget reports whether code is one of SupportedTargets.
func IsSupportedTarget(code string) bool {
	for _, l := range SupportedTargets {
		if l.Code == code {
			return true
		}
	}
	return false
}

// BuildPrompt renders the fixed instruction template sent to generative engines.
func BuildPrompt(text, targetLang string) string {
	return fmt.Sprintf("Translate the following text to %s:\n%s", targetLang, text)
}
