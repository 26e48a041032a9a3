package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	t.Run("EmptyInput", func(t *testing.T) {
		assert.Empty(t, SplitChunks("", 100))
		assert.Empty(t, SplitChunks("   \n\t\n  ", 100))
	})

	t.Run("FitsInOneSegment", func(t *testing.T) {
		chunks := SplitChunks("short text", 100)
		require.Len(t, chunks, 1)
		assert.Equal(t, "short text", chunks[0])
	})

	t.Run("SplitsAtParagraphBoundaries", func(t *testing.T) {
		text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40) + "\n\n" + strings.Repeat("c", 40)
		chunks := SplitChunks(text, 90)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 40)+"\n\n"+strings.Repeat("b", 40), chunks[0])
		assert.Equal(t, strings.Repeat("c", 40), chunks[1])
	})

	t.Run("OversizedAtomicBlockSlicedRaw", func(t *testing.T) {
		block := strings.Repeat("x", 35)
		chunks := SplitChunks(block, 10)
		require.Len(t, chunks, 4)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len([]rune(chunk)), 10)
		}
	})

	t.Run("BudgetRespected", func(t *testing.T) {
		var paragraphs []string
		for i := 0; i < 12; i++ {
			paragraphs = append(paragraphs, strings.Repeat("word ", 10))
		}
		text := strings.Join(paragraphs, "\n\n")
		for _, chunk := range SplitChunks(text, 120) {
			assert.LessOrEqual(t, len([]rune(chunk)), 120)
			assert.NotEmpty(t, strings.TrimSpace(chunk))
		}
	})

	t.Run("ConcatenationReproducesInput", func(t *testing.T) {
		texts := []string{
			"First paragraph about the eye.\n\nSecond paragraph about the retina.\n\nThird one about the cornea and the lens of the eye.",
			"Myopia: blurry vision.\nHyperopia: blurry near vision.\n\nAstigmatism is a refractive error.",
			strings.Repeat("unbroken", 50),
		}
		// Cut points may fall inside a word for oversized atomic blocks,
		// so compare with all whitespace normalized away.
		squash := func(s string) string { return strings.Join(strings.Fields(s), "") }
		for _, text := range texts {
			chunks := SplitChunks(text, 60)
			joined := strings.Join(chunks, " ")
			assert.Equal(t, squash(text), squash(joined))
		}
	})
}
