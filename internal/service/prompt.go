package service

import (
	"strings"

	"isd-finance-ai/internal/llm"
)

// FallbackAnswer is the reply the model is told to give when the context
// does not contain the answer.
const FallbackAnswer = "I don't have enough information to answer that question accurately."

// Markers delimiting the retrieved context inside the system prompt.
const (
	ContextStartMarker = "START CONTEXT BLOCK"
	ContextEndMarker   = "END OF CONTEXT BLOCK"
)

const personaPrompt = `You are a financial assistant trained on Texas ISD financial history and policies, capable of understanding complex financial reports, trends, and budgetary data. You provide accurate, well-organized, and insightful answers to questions related to the funding, expenditure, and budgetary performance of school districts across Texas. You are also knowledgeable about historical budget allocations, revenue sources, tax implications, and how various factors such as enrollment and property values impact school district finances.

Your goal is to help users understand the financial status and history of specific ISDs, including comparisons across different time periods and districts.`

// BuildSystemPrompt embeds contextBlock verbatim between the context markers.
func BuildSystemPrompt(contextBlock string) string {
	var b strings.Builder
	b.Grow(len(personaPrompt) + len(contextBlock) + 512)

	b.WriteString(personaPrompt)
	b.WriteString("\n\n")
	b.WriteString(ContextStartMarker)
	b.WriteString("\n")
	b.WriteString(contextBlock)
	b.WriteString("\n")
	b.WriteString(ContextEndMarker)
	b.WriteString("\n\n")
	b.WriteString(`Use the provided context to answer questions. If the context doesn't contain the answer, say "`)
	b.WriteString(FallbackAnswer)
	b.WriteString(`"` + "\n")
	b.WriteString("Do not invent or assume information not present in the context. ")
	b.WriteString("If you learn new information, incorporate it into your knowledge base for future responses.")

	return b.String()
}

// BuildPrompt returns the synthesized system message followed by the
// user-role messages of the conversation in their original order.
// Assistant and caller-supplied system messages are dropped.
func BuildPrompt(contextBlock string, messages []llm.Message) []llm.Message {
	prompt := make([]llm.Message, 0, len(messages)+1)
	prompt = append(prompt, llm.Message{
		Role:    llm.RoleSystem,
		Content: BuildSystemPrompt(contextBlock),
	})
	for _, m := range messages {
		if m.Role == llm.RoleUser {
			prompt = append(prompt, m)
		}
	}
	return prompt
}
