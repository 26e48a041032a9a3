package services

import "strings"

// Supported prompt languages. Detection is a cheap heuristic, not NLP:
// Norwegian diacritics plus closed-class function words on both sides.
const (
	LanguageEnglish   = "english"
	LanguageNorwegian = "norwegian"
)

var norwegianWords = map[string]struct{}{
	"og": {}, "er": {}, "ikke": {}, "det": {}, "som": {}, "en": {},
	"et": {}, "på": {}, "til": {}, "av": {}, "med": {}, "jeg": {},
	"den": {}, "hva": {}, "eller": {},
}

var englishWords = map[string]struct{}{
	"the": {}, "is": {}, "are": {}, "and": {}, "of": {}, "to": {},
	"in": {}, "that": {}, "with": {}, "which": {}, "this": {}, "what": {},
}

// DetectLanguage picks the directive language for the prompt. Ambiguous text
// falls back to the caller-supplied hint, then to the configured default.
func DetectLanguage(text, hint, fallback string) string {
	norScore := strings.Count(text, "æ") + strings.Count(text, "ø") + strings.Count(text, "å") +
		strings.Count(text, "Æ") + strings.Count(text, "Ø") + strings.Count(text, "Å")
	norScore *= 2

	engScore := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if _, ok := norwegianWords[word]; ok {
			norScore++
		}
		if _, ok := englishWords[word]; ok {
			engScore++
		}
	}

	switch {
	case norScore > engScore:
		return LanguageNorwegian
	case engScore > norScore:
		return LanguageEnglish
	}
	if lang := normalizeLanguage(hint); lang != "" {
		return lang
	}
	if lang := normalizeLanguage(fallback); lang != "" {
		return lang
	}
	return LanguageEnglish
}

func normalizeLanguage(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LanguageEnglish, "en":
		return LanguageEnglish
	case LanguageNorwegian, "no", "nb", "norsk":
		return LanguageNorwegian
	}
	return ""
}
