package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Full word forms accepted in configuration files ("spanish" instead of "es").
var byWord = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"dutch":      "nl",
}

func parse(code string) (language.Tag, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return language.Und, false
	}
	if iso2, ok := byWord[code]; ok {
		code = iso2
	}
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// ToISO2 converts a recognized language code, BCP 47 tag, or English word to
// its ISO 639-1 base. Returns empty string for unrecognized input.
func ToISO2(code string) string {
	tag, ok := parse(code)
	if !ok {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// ToISO3 converts a recognized language to ISO 639-2 (3-letter).
func ToISO3(code string) string {
	tag, ok := parse(code)
	if !ok {
		return ""
	}
	base, _ := tag.Base()
	return base.ISO3()
}

// DisplayName returns the English name for a language code, falling back to
// the upper-cased input when the code is unknown.
func DisplayName(code string) string {
	tag, ok := parse(code)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return strings.ToUpper(base.String())
}

// SubtitleSuffix builds the artifact suffix for a language, e.g. ".es.srt".
func SubtitleSuffix(code string) string {
	iso2 := ToISO2(code)
	if iso2 == "" {
		return ""
	}
	return "." + iso2 + ".srt"
}
