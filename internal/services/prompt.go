package services

import (
	"fmt"
	"strings"

	"ankigen/internal/models"
)

// batchSchema is embedded verbatim in every prompt so the extractor and the
// upstream share one record contract.
const batchSchema = `{"cards":[{"front":"","back":"","type":"basic","tags":[],"difficulty":"medium","context":""}],"concepts":[],"medicalTerms":[],"summary":""}`

const systemPrompt = "You are an expert educator who designs spaced repetition flashcards from study material."

// BuildPrompt renders one chunk into the instruction text sent upstream.
// Pure and deterministic; temperature and model choice belong to the caller.
func BuildPrompt(segment string, format models.CardType, language string, chunkIndex, chunkTotal int) string {
	var b strings.Builder

	b.WriteString("Strictly respond with a JSON object ")
	b.WriteString(batchSchema)
	b.WriteString(".\n")
	b.WriteString(`Allowed "difficulty" values: easy, medium, hard. `)
	fmt.Fprintf(&b, "Every card must use %q as its \"type\".\n", format)
	b.WriteString(`"concepts" lists the topics covered; "medicalTerms" lists the subset that are clinical or anatomical terms; "summary" is one or two sentences describing the source text.` + "\n\n")

	switch format {
	case models.CardTypeCloze:
		b.WriteString("Write cloze deletion cards. The front is a complete statement with the hidden span marked as {{c1::answer}}; the back may repeat the hidden text or stay empty.\n")
	case models.CardTypeImage:
		b.WriteString("Write cards describing the figures and diagrams mentioned in the text: the front asks about the figure, the back states what it shows.\n")
	default:
		b.WriteString("Write atomic question/answer cards that force active recall. The front is a single unambiguous question, the back a short answer.\n")
	}

	switch language {
	case LanguageNorwegian:
		b.WriteString("Skriv alle kortene på norsk, samme språk som kildeteksten. Ikke oversett fagbegreper som står på norsk.\n")
	default:
		b.WriteString("Write every card in English, the same language as the source text. Do not translate terminology.\n")
	}

	if chunkTotal > 1 {
		fmt.Fprintf(&b, "\nThis is part %d of %d of a longer document. Cover only the material in this part.\n", chunkIndex+1, chunkTotal)
	}

	b.WriteString("\nStudy text:\n")
	b.WriteString(segment)

	return b.String()
}
