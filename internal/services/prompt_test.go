package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ankigen/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		a := BuildPrompt("some text", models.CardTypeBasic, LanguageEnglish, 0, 1)
		b := BuildPrompt("some text", models.CardTypeBasic, LanguageEnglish, 0, 1)
		assert.Equal(t, a, b)
	})

	t.Run("EmbedsSchemaAndSegment", func(t *testing.T) {
		prompt := BuildPrompt("the study text", models.CardTypeBasic, LanguageEnglish, 0, 1)
		assert.Contains(t, prompt, batchSchema)
		assert.Contains(t, prompt, "the study text")
		assert.Contains(t, prompt, "easy, medium, hard")
		assert.Contains(t, prompt, `"basic"`)
	})

	t.Run("ClozeRules", func(t *testing.T) {
		prompt := BuildPrompt("text", models.CardTypeCloze, LanguageEnglish, 0, 1)
		assert.Contains(t, prompt, "{{c1::answer}}")
		assert.Contains(t, prompt, `"cloze"`)
	})

	t.Run("NorwegianDirective", func(t *testing.T) {
		prompt := BuildPrompt("tekst", models.CardTypeBasic, LanguageNorwegian, 0, 1)
		assert.Contains(t, prompt, "norsk")
		assert.NotContains(t, prompt, "Write every card in English")
	})

	t.Run("ChunkAnnotationOnlyForMultiPart", func(t *testing.T) {
		single := BuildPrompt("text", models.CardTypeBasic, LanguageEnglish, 0, 1)
		assert.NotContains(t, single, "part 1 of 1")

		multi := BuildPrompt("text", models.CardTypeBasic, LanguageEnglish, 1, 3)
		assert.Contains(t, multi, "part 2 of 3")
	})
}
