package services

import (
	"strings"

	"ankigen/internal/models"
)

// CombineResults merges per-chunk results into one batch: cards concatenate
// in order and deduplicate by exact front equality (first occurrence wins),
// concept sets union, and non-empty summaries join with a space. Pure.
func CombineResults(results []models.ExtractionResult) models.ExtractionResult {
	var combined models.ExtractionResult
	combined.Cards = []models.FlashCard{}
	combined.Concepts = []string{}
	combined.MedicalTerms = []string{}

	seenFronts := make(map[string]struct{})
	seenConcepts := make(map[string]struct{})
	seenTerms := make(map[string]struct{})
	var summaries []string

	for _, res := range results {
		for _, card := range res.Cards {
			if _, ok := seenFronts[card.Front]; ok {
				continue
			}
			seenFronts[card.Front] = struct{}{}
			combined.Cards = append(combined.Cards, card)
		}
		for _, concept := range res.Concepts {
			key := strings.ToLower(strings.TrimSpace(concept))
			if key == "" {
				continue
			}
			if _, ok := seenConcepts[key]; ok {
				continue
			}
			seenConcepts[key] = struct{}{}
			combined.Concepts = append(combined.Concepts, concept)
		}
		for _, term := range res.MedicalTerms {
			key := strings.ToLower(strings.TrimSpace(term))
			if key == "" {
				continue
			}
			if _, ok := seenTerms[key]; ok {
				continue
			}
			seenTerms[key] = struct{}{}
			combined.MedicalTerms = append(combined.MedicalTerms, term)
		}
		if s := strings.TrimSpace(res.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}

	combined.Summary = strings.Join(summaries, " ")
	return combined
}
