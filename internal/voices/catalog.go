// Package voices lists the prebuilt voices and languages offered by the
// studio and keeps the session's custom voice profiles.
package voices

// Voice is a prebuilt voice of the speech backend.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

// Language is a selectable output language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// LanguageGroup groups languages for display.
type LanguageGroup struct {
	Label   string     `json:"label"`
	Options []Language `json:"options"`
}

// AutoLanguage lets the model pick the language from the text.
const AutoLanguage = "Auto Detect"

var catalog = []Voice{
	{ID: "Kore", Name: "Kore", Gender: "Female", Description: "Warm, nurturing, and natural."},
	{ID: "Zephyr", Name: "Zephyr", Gender: "Female", Description: "Soft, airy, and melodic."},
	{ID: "Aoede", Name: "Aoede", Gender: "Female", Description: "Sophisticated and professional."},
	{ID: "Eos", Name: "Eos", Gender: "Female", Description: "Bright and energetic."},
	{ID: "Puck", Name: "Puck", Gender: "Male", Description: "Deep and authoritative."},
	{ID: "Charon", Name: "Charon", Gender: "Male", Description: "Steady and reliable."},
	{ID: "Orpheus", Name: "Orpheus", Gender: "Male", Description: "Poetic and expressive."},
	{ID: "Fenrir", Name: "Fenrir", Gender: "Male", Description: "Grit and intensity."},
}

var languages = []LanguageGroup{
	{Label: "Global", Options: []Language{
		{Code: "en", Name: "English"},
		{Code: "es", Name: "Spanish"},
		{Code: "fr", Name: "French"},
		{Code: "de", Name: "German"},
		{Code: "it", Name: "Italian"},
	}},
	{Label: "Asian", Options: []Language{
		{Code: "ja", Name: "Japanese"},
		{Code: "zh", Name: "Chinese"},
		{Code: "ko", Name: "Korean"},
		{Code: "hi", Name: "Hindi"},
	}},
}

var samplePrompts = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Welcome to the future of artificial intelligence voice generation.",
	"I can read audiobooks, narrate videos, or just say hello!",
	"Explain quantum computing to a five year old in a funny way.",
}

// Prebuilt returns the prebuilt voices in display order.
func Prebuilt() []Voice {
	return append([]Voice(nil), catalog...)
}

// Lookup finds a prebuilt voice by id.
func Lookup(id string) (Voice, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// Languages returns the language groups in display order.
func Languages() []LanguageGroup {
	out := make([]LanguageGroup, len(languages))
	for i, g := range languages {
		out[i] = LanguageGroup{Label: g.Label, Options: append([]Language(nil), g.Options...)}
	}
	return out
}

// ValidLanguage reports whether name is a listed language or selects
// automatic detection.
func ValidLanguage(name string) bool {
	switch name {
	case "", "auto", "Auto", AutoLanguage:
		return true
	}
	for _, g := range languages {
		for _, l := range g.Options {
			if l.Name == name {
				return true
			}
		}
	}
	return false
}

// SamplePrompts returns example texts.
func SamplePrompts() []string {
	return append([]string(nil), samplePrompts...)
}
