package models

import (
	"regexp"
	"strings"
)

// CardType selects the authoring style for a whole generation run.
type CardType string

const (
	CardTypeBasic CardType = "basic"
	CardTypeCloze CardType = "cloze"
	CardTypeImage CardType = "image"
)

// ParseCardType maps free-form user input onto a known card type.
func ParseCardType(s string) (CardType, bool) {
	switch CardType(strings.ToLower(strings.TrimSpace(s))) {
	case CardTypeBasic:
		return CardTypeBasic, true
	case CardTypeCloze:
		return CardTypeCloze, true
	case CardTypeImage:
		return CardTypeImage, true
	}
	return "", false
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// NormalizeDifficulty coerces upstream difficulty values onto the enum,
// defaulting to medium when the value is absent or unrecognised.
func NormalizeDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// FlashCard is one validated study item ready for export.
type FlashCard struct {
	ID         string     `json:"id"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	Type       CardType   `json:"type"`
	Tags       []string   `json:"tags"`
	Difficulty Difficulty `json:"difficulty"`
	Context    string     `json:"context,omitempty"`
}

// clozeSpan matches Anki-style hidden spans like {{c1::answer}} or
// {{c1::answer::hint}}.
var clozeSpan = regexp.MustCompile(`\{\{c\d+::([^:}][^}]*?)(?:::[^}]*)?\}\}`)

// ClozeAnswer returns the text hidden by the first cloze span in front,
// or "" when front carries no recoverable span.
func ClozeAnswer(front string) string {
	m := clozeSpan.FindStringSubmatch(front)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// HasClozeSpan reports whether the text contains at least one cloze span.
func HasClozeSpan(text string) bool {
	return clozeSpan.MatchString(text)
}

// Valid reports whether the card satisfies the validity invariant:
// a non-empty front and a recoverable answer. Cloze cards may leave the
// explicit back blank as long as the front carries a hidden span.
func (c FlashCard) Valid() bool {
	if strings.TrimSpace(c.Front) == "" {
		return false
	}
	if strings.TrimSpace(c.Back) != "" {
		return true
	}
	return c.Type == CardTypeCloze && ClozeAnswer(c.Front) != ""
}

// ExtractionResult is the terminal value of one pipeline run. It is not
// mutated after combination.
type ExtractionResult struct {
	Cards        []FlashCard `json:"cards"`
	Concepts     []string    `json:"concepts"`
	MedicalTerms []string    `json:"medicalTerms"`
	Summary      string      `json:"summary"`
}
