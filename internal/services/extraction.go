package services

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"ankigen/internal/models"
)

// candidateBatch mirrors the JSON document the prompt asks for. Field types
// are deliberately loose: the upstream is free text first and JSON second,
// so a wrong-typed field must not sink the whole batch.
type candidateBatch struct {
	Cards        []candidateCard `json:"cards"`
	Concepts     looseStrings    `json:"concepts"`
	MedicalTerms looseStrings    `json:"medicalTerms"`
	Summary      looseString     `json:"summary"`
}

type candidateCard struct {
	Front      looseString  `json:"front"`
	Back       looseString  `json:"back"`
	Type       looseString  `json:"type"`
	Tags       looseStrings `json:"tags"`
	Difficulty looseString  `json:"difficulty"`
	Context    looseString  `json:"context"`
}

// looseString decodes any scalar, keeping only string values.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if str, ok := raw.(string); ok {
		*s = looseString(str)
	}
	return nil
}

// looseStrings coerces a value to a string list: a lone string becomes a
// one-element list, non-string elements are skipped, and any other shape
// collapses to an empty list.
type looseStrings []string

func (s *looseStrings) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			*s = looseStrings{v}
		}
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				*s = append(*s, str)
			}
		}
	}
	return nil
}

// extractCardBatch locates and decodes a card batch inside a free-text
// upstream reply, trying strategies in order. A decode that parses but
// carries an absent or empty "cards" list fails that strategy; the upstream
// sometimes emits syntactically valid but semantically empty JSON, and that
// must escalate rather than count as a zero-card success.
func extractCardBatch(reply string) (*candidateBatch, error) {
	cleaned := stripWrapperMarkers(reply)

	strategies := []func(string) (*candidateBatch, bool){
		decodeWhole,
		decodeBraceBound,
		decodeBareArray,
		decodeBlockScan,
	}
	for _, strategy := range strategies {
		if batch, ok := strategy(cleaned); ok {
			return batch, nil
		}
	}
	return nil, ErrNoCards
}

// stripWrapperMarkers removes markdown code fences and the optional
// language label line after the opening fence.
func stripWrapperMarkers(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		start := 3
		// Skip the language identifier line (e.g. "json").
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}
	return strings.TrimSpace(content)
}

func decodeBatch(s string) (*candidateBatch, bool) {
	var batch candidateBatch
	if err := json.Unmarshal([]byte(s), &batch); err != nil {
		return nil, false
	}
	if len(batch.Cards) == 0 {
		return nil, false
	}
	return &batch, true
}

// Strategy 1: the cleaned reply is the document.
func decodeWhole(s string) (*candidateBatch, bool) {
	return decodeBatch(s)
}

// Strategy 2: bound by the first opening and last closing brace, trimming
// upstream preamble and postamble chatter.
func decodeBraceBound(s string) (*candidateBatch, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return decodeBatch(s[start : end+1])
}

// Strategy 3: the reply carries only the inner array; synthesize the
// enclosing document around it.
func decodeBareArray(s string) (*candidateBatch, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end <= start {
		return nil, false
	}
	return decodeBatch(`{"cards":` + s[start:end+1] + `}`)
}

// Strategy 4: scan paragraph blocks individually for ones that mention the
// schema's marker field alongside a list opener.
func decodeBlockScan(s string) (*candidateBatch, bool) {
	for _, block := range paragraphBreak.Split(s, -1) {
		if !strings.Contains(block, `"cards"`) || !strings.Contains(block, "[") {
			continue
		}
		if batch, ok := decodeBraceBound(block); ok {
			return batch, true
		}
	}
	return nil, false
}

// normalizeCards turns candidates into FlashCards, discarding any candidate
// without a non-empty front and a recoverable answer. The card type is fixed
// for the whole run; whatever the upstream put in "type" is ignored.
func normalizeCards(candidates []candidateCard, format models.CardType) []models.FlashCard {
	cards := make([]models.FlashCard, 0, len(candidates))
	for _, cand := range candidates {
		front := strings.TrimSpace(string(cand.Front))
		if front == "" {
			continue
		}
		back := strings.TrimSpace(string(cand.Back))
		if back == "" {
			if format != models.CardTypeCloze {
				continue
			}
			// Cloze cards may leave the back blank as long as the hidden
			// span carries the answer.
			back = models.ClozeAnswer(front)
			if back == "" {
				continue
			}
		}
		cards = append(cards, models.FlashCard{
			ID:         uuid.NewString(),
			Front:      front,
			Back:       back,
			Type:       format,
			Tags:       dedupeStrings(cand.Tags),
			Difficulty: models.NormalizeDifficulty(string(cand.Difficulty)),
			Context:    strings.TrimSpace(string(cand.Context)),
		})
	}
	return cards
}

// batchToResult validates and normalizes a decoded batch. A batch whose
// candidates are all discarded yields ErrNoValidCards so the caller can
// escalate instead of accepting an empty run.
func batchToResult(batch *candidateBatch, format models.CardType) (models.ExtractionResult, error) {
	cards := normalizeCards(batch.Cards, format)
	if len(cards) == 0 {
		return models.ExtractionResult{}, ErrNoValidCards
	}
	return models.ExtractionResult{
		Cards:        cards,
		Concepts:     dedupeStrings(batch.Concepts),
		MedicalTerms: dedupeStrings(batch.MedicalTerms),
		Summary:      strings.TrimSpace(string(batch.Summary)),
	}, nil
}

// dedupeStrings collapses duplicates case-insensitively, keeping the first
// spelling and the original order.
func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
