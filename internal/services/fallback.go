package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"ankigen/internal/models"
)

// Offline extraction patterns, applied per line in this order.
var (
	bulletMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	termDefLine  = regexp.MustCompile(`^([\p{L}][^:]{0,79}?):\s+(\S.*)$`)
	copulaLine   = regexp.MustCompile(`^(.{2,80}?)\s+(?i:(is|are|er))\s+(\S.*)$`)
)

// medicalSuffixes is a crude filter for surfacing clinical vocabulary out of
// the concept list when running offline.
var medicalSuffixes = []string{
	"opia", "itis", "osis", "oma", "emia", "pathy", "ology",
	"ectomy", "scopy", "algia", "trophy", "plegia",
}

// FallbackExtract is the rule-based text-to-flashcard converter. It never
// fails: unusable input degrades to an empty card list. Used both when no
// credential is configured and as the last-resort recovery after the
// upstream path is exhausted.
func FallbackExtract(text string, format models.CardType, maxCards int) models.ExtractionResult {
	result := models.ExtractionResult{
		Cards:        []models.FlashCard{},
		Concepts:     []string{},
		MedicalTerms: []string{},
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return result
	}

	seenFronts := make(map[string]struct{})
	addCard := func(front, back, topic string) {
		if len(result.Cards) >= maxCards {
			return
		}
		front = strings.TrimSpace(front)
		back = strings.TrimSpace(back)
		if front == "" || back == "" {
			return
		}
		if _, ok := seenFronts[front]; ok {
			return
		}
		seenFronts[front] = struct{}{}
		card := models.FlashCard{
			ID:         uuid.NewString(),
			Front:      front,
			Back:       back,
			Type:       format,
			Tags:       []string{},
			Difficulty: models.DifficultyMedium,
		}
		if topic = strings.ToLower(strings.TrimSpace(topic)); topic != "" {
			card.Tags = append(card.Tags, topic)
			result.Concepts = append(result.Concepts, topic)
		}
		result.Cards = append(result.Cards, card)
	}

	for _, line := range strings.Split(text, "\n") {
		if len(result.Cards) >= maxCards {
			break
		}
		line = strings.TrimSpace(bulletMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if len(line) < 8 {
			continue
		}

		if m := termDefLine.FindStringSubmatch(line); m != nil {
			term, def := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if format == models.CardTypeCloze {
				addCard(fmt.Sprintf("%s: {{c1::%s}}", term, def), def, term)
			} else {
				addCard(fmt.Sprintf("What is %s?", term), def, term)
			}
			continue
		}

		if m := copulaLine.FindStringSubmatch(line); m != nil {
			subject, verb, predicate := strings.TrimSpace(m[1]), strings.ToLower(m[2]), strings.TrimSpace(m[3])
			predicate = strings.TrimRight(predicate, ".")
			if format == models.CardTypeCloze {
				addCard(fmt.Sprintf("%s %s {{c1::%s}}.", subject, verb, predicate), predicate, subject)
			} else {
				question := fmt.Sprintf("What %s %s?", verb, subject)
				if verb == "er" {
					question = fmt.Sprintf("Hva er %s?", subject)
				}
				addCard(question, predicate, subject)
			}
			continue
		}
	}

	result.Concepts = dedupeStrings(result.Concepts)
	for _, concept := range result.Concepts {
		if hasMedicalSuffix(concept) {
			result.MedicalTerms = append(result.MedicalTerms, concept)
		}
	}
	result.Summary = summarize(text)
	return result
}

func hasMedicalSuffix(term string) bool {
	term = strings.ToLower(term)
	for _, word := range strings.Fields(term) {
		word = strings.Trim(word, ".,;:!?()")
		for _, suffix := range medicalSuffixes {
			if strings.HasSuffix(word, suffix) && len(word) > len(suffix) {
				return true
			}
		}
	}
	return false
}

// summarize takes the first paragraph, collapsed and truncated, as a stand-in
// summary of the source text.
func summarize(text string) string {
	first := paragraphBreak.Split(text, 2)[0]
	collapsed := strings.Join(strings.Fields(first), " ")
	runes := []rune(collapsed)
	if len(runes) > 160 {
		return string(runes[:157]) + "..."
	}
	return collapsed
}
