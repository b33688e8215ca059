package knowledgebase

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// ContextDelimiter separates retrieved chunks inside the prompt.
const ContextDelimiter = "\n\n - -\n\n"

const answerTemplate = `You are an expert API documentation assistant. Answer the query using only the documentation below.

Rules:
- Only discuss API endpoints and parameters that appear in the documentation.
- Reproduce curl commands, request payloads and response examples exactly as they are shown.
- Include every relevant request parameter and header.
- Never invent endpoints, parameters or capabilities that are not listed.
- For error related queries, give the direct fix without extra explanation.
- Refer to the provided material as "documentation", never as "context".

Documentation:
{{.context}}

Chat History:
{{.history}}

Query: {{.question}}

Answer:`

var answerPrompt = prompts.NewPromptTemplate(answerTemplate, []string{"context", "history", "question"})

// buildContext joins chunk texts in ranking order.
func buildContext(chunks []ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, ContextDelimiter)
}

// formatHistory renders one "<role>: <content>" line per turn.
func formatHistory(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}

func renderPrompt(context, history, question string) (string, error) {
	return answerPrompt.Format(map[string]any{
		"context":  context,
		"history":  history,
		"question": question,
	})
}

// formatResponse renders the answer followed by the source of every
// retrieved chunk in ranking order. Missing sources are shown as "unknown".
func formatResponse(answer string, sources []string) string {
	shown := make([]string, len(sources))
	for i, s := range sources {
		if s == "" {
			s = "unknown"
		}
		shown[i] = s
	}
	return "Response: " + answer + "\n\nSources: [" + strings.Join(shown, ", ") + "]"
}
