package retrieval

import (
	"fmt"
	"strings"
)

// NoContextAnswer is returned without calling the synthesizer when the index
// has nothing near the question.
const NoContextAnswer = "I couldn't find any relevant information in the indexed content to answer your question."

const SystemPrompt = "You answer questions using only the context provided to you. " +
	"Do not use outside knowledge. If the context does not contain the answer, say that " +
	"the information is not available in the provided content. " +
	"Cite the sources you used by their source number, chapter and section."

// BuildPrompt renders the retrieved units as numbered sources followed by the
// question and answering instructions.
func BuildPrompt(question string, units []RetrievedUnit) string {
	var b strings.Builder

	b.WriteString("CONTEXT:\n")
	for i, u := range units {
		fmt.Fprintf(&b, "[SOURCE %d]\n", i+1)
		fmt.Fprintf(&b, "Content: %s\n", u.Text)
		fmt.Fprintf(&b, "Chapter ID: %s\n", orUnknown(u.Metadata.SourceID))
		if u.Metadata.Position > 0 {
			fmt.Fprintf(&b, "Section: %d\n", u.Metadata.Position)
		} else {
			b.WriteString("Section: Unknown\n")
		}
		fmt.Fprintf(&b, "Similarity Score: %.3f\n", u.Score)
		fmt.Fprintf(&b, "Unit ID: %s\n", u.ID)
		b.WriteString("---\n")
	}

	b.WriteString("\nQUESTION:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Answer using ONLY the context above.\n")
	b.WriteString("2. If the context is insufficient, state that the information is not available in the provided content.\n")
	b.WriteString("3. Reference the sources you relied on by number, chapter and section.\n")
	b.WriteString("4. Be concise and keep an academic tone.\n")
	b.WriteString("\nRESPONSE FORMAT:\n")
	b.WriteString("The answer first, then:\nCitations:\n- Source [number]: Chapter [id], Section [number]\n")

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
