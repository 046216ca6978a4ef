package rag

import (
	"fmt"
	"strings"

	"github.com/dgallion1/pdfchat/internal/chunker"
	"github.com/dgallion1/pdfchat/internal/llm"
)

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
%s
Follow Up Input: %s
Standalone question:`

const qaSystemTemplate = `Use the following pieces of context to answer the user's question. 
If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
%s`

// formatHistory renders turns as alternating Human/Assistant lines.
func formatHistory(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Human: ")
		sb.WriteString(t.User)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(t.Assistant)
	}
	return sb.String()
}

// trimHistory drops the oldest turns until the rendered history fits in
// limit estimated tokens. The newest turn is always kept.
func trimHistory(turns []Turn, limit int) []Turn {
	if limit <= 0 {
		return turns
	}
	for len(turns) > 1 && chunker.EstimateTokens(formatHistory(turns)) > limit {
		turns = turns[1:]
	}
	return turns
}

func condenseMessages(turns []Turn, question string) []llm.Message {
	return []llm.Message{{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(condenseTemplate, formatHistory(turns), question),
	}}
}

// qaMessages stuffs the retrieved chunk texts into a single system message.
func qaMessages(sources []Source, question string) []llm.Message {
	texts := make([]string, 0, len(sources))
	for _, s := range sources {
		texts = append(texts, s.Text)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(qaSystemTemplate, strings.Join(texts, "\n\n"))},
		{Role: llm.RoleUser, Content: question},
	}
}
