package tts

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage canonicalizes a BCP 47 tag ("en-gb" becomes "en-GB").
// Blank or unparseable input yields fallback.
func NormalizeLanguage(lang, fallback string) string {
	lang = strings.TrimSpace(strings.ReplaceAll(lang, "_", "-"))
	if lang == "" {
		return fallback
	}
	tag, err := language.Parse(lang)
	if err != nil || tag == language.Und {
		return fallback
	}
	return tag.String()
}
