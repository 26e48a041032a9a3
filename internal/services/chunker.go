package services

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitChunks splits text into ordered segments of at most budget characters,
// preferring paragraph boundaries. A single paragraph larger than the budget
// is sliced at fixed rune width instead. Whitespace-only input yields no
// segments.
func SplitChunks(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if budget <= 0 || len([]rune(text)) <= budget {
		return []string{text}
	}

	var (
		chunks  []string
		current []string
		curLen  int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			curLen = 0
		}
	}

	for _, block := range paragraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		blockLen := len([]rune(block))

		if blockLen > budget {
			// Atomic block larger than the budget: raw slicing.
			flush()
			chunks = append(chunks, sliceRunes(block, budget)...)
			continue
		}

		sep := 0
		if curLen > 0 {
			sep = 2 // "\n\n"
		}
		if curLen+sep+blockLen > budget {
			flush()
		}
		current = append(current, block)
		curLen += sep + blockLen
	}
	flush()

	return chunks
}

func sliceRunes(s string, width int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
