package extract

import (
	"fmt"
	"strings"

	"github.com/kalambet/vono/internal/openai"
)

const systemPrompt = `You are a voice-note structuring engine. You receive the transcript of one spoken note and turn it into a single structured item. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Intent types:
- "TODO": the speaker lists one or more things to do
- "RESEARCH": the speaker asks a question they want answered
- "DRAFT": the speaker dictates content to be written up (a message, post, or document)
- "NOTE": anything else worth keeping as spoken

Rules:
- title: a short descriptive title.
- summary: one or two sentences capturing the note.
- tags: between 2 and 5 lowercase topical tags.
- key_facts: concrete facts worth remembering, as short strings; empty if there are none.
- data: fill exactly the branch matching the intent and set the others to null. For "TODO" produce one todos entry per task with done=false and the due date only when the speaker names one. For "RESEARCH" answer the question yourself in research_answer. For "DRAFT" write the polished text in draft_content. For "NOTE" set every branch to null.
- Write every field in the language of the transcript. Never translate.`

// BuildPrompt constructs the chat messages for item extraction.
func BuildPrompt(transcript, language string) []openai.Message {
	var sb strings.Builder
	sb.WriteString("Transcript")
	if language != "" {
		fmt.Fprintf(&sb, " (language: %s)", language)
	}
	sb.WriteString(":\n\n")
	sb.WriteString(transcript)

	return []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
