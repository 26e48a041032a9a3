package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hint     string
		fallback string
		want     string
	}{
		{
			name: "NorwegianDiacriticsAndFunctionWords",
			text: "Øyet er ikke et kamera, og netthinnen er det lysfølsomme laget.",
			want: LanguageNorwegian,
		},
		{
			name: "EnglishFunctionWords",
			text: "The retina is the light-sensitive layer of tissue at the back of the eye.",
			want: LanguageEnglish,
		},
		{
			name: "AmbiguousUsesHint",
			text: "Cornea 43D. Lens 20D.",
			hint: "no",
			want: LanguageNorwegian,
		},
		{
			name:     "AmbiguousWithoutHintUsesFallback",
			text:     "Cornea 43D. Lens 20D.",
			fallback: LanguageNorwegian,
			want:     LanguageNorwegian,
		},
		{
			name:     "AmbiguousWithInvalidHintAndFallback",
			text:     "12345",
			hint:     "klingon",
			fallback: "elvish",
			want:     LanguageEnglish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.text, tt.hint, tt.fallback))
		})
	}
}
