package synthesis

import (
	"fmt"
	"strings"

	"github.com/hyperjump/tutor/pkg/utils"
)

const (
	noDocumentsAnswer = "I couldn't find any relevant documents."
	apologyPrefix     = "Sorry, I had trouble generating a concise answer. Here are relevant passages:\n\n---\n\n"
	apologyContextLen = 1500
)

func defaultSystemPrompt(course string) string {
	return fmt.Sprintf("You are a helpful teaching assistant for the %s course.", course)
}

// buildPrompt lays out the passages, the question and the required response shape.
func buildPrompt(contextText, question string, hasImage bool) string {
	var b strings.Builder
	b.WriteString("Use the following course and forum passages to answer the student's question. ")
	b.WriteString("Be concise (3-4 sentences) and cite passage numbers like (Passage 2) if needed.\n\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	if hasImage {
		b.WriteString("\n\nThe student attached an image; use it if it helps answer the question.")
	}
	b.WriteString("\n\nRespond with a JSON object only, in this shape:\n")
	b.WriteString(`{"answer": "<your answer>", "links": [{"url": "<source url of a passage you used>", "text": "<short description>"}]}`)
	return b.String()
}

// apologyAnswer is used when the model produced nothing usable.
func apologyAnswer(contextText string) string {
	return apologyPrefix + utils.HeadRunes(contextText, apologyContextLen)
}
