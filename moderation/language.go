package moderation

import "github.com/abadojack/whatlanggo"

// unknownLanguage is reported when no language could be detected.
const unknownLanguage = "und"

// DetectLanguage returns the ISO 639-1 code of the content language.
func DetectLanguage(content string) string {
	if code := whatlanggo.Detect(content).Lang.Iso6391(); code != "" {
		return code
	}
	return unknownLanguage
}
