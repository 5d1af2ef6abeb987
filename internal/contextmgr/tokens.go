// Package contextmgr keeps conversations inside the model context window.
// Token counts are estimated from characters so no tokenizer dependency is
// needed; the estimate only has to be conservative enough for thresholding.
package contextmgr

import (
	"github.com/codeassist/codeassist/internal/message"
)

// EstimateTokens estimates the token count of a string: roughly 4 ASCII
// characters or 2 non-ASCII characters per token, each class rounded up.
func EstimateTokens(s string) int {
	ascii := 0
	other := 0
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			other++
		}
	}
	tokens := (ascii + 3) / 4
	tokens += (other + 1) / 2
	return tokens
}

// EstimateMessage estimates the tokens of one message including tool calls
// and tool results.
func EstimateMessage(msg message.Message) int {
	total := EstimateTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += EstimateTokens(tc.Name) + EstimateTokens(tc.Input)
	}
	if msg.ToolResult != nil {
		total += EstimateTokens(msg.ToolResult.Content)
	}
	return total
}

// EstimateMessages sums the estimate over a conversation.
func EstimateMessages(msgs []message.Message) int {
	total := 0
	for _, msg := range msgs {
		total += EstimateMessage(msg)
	}
	return total
}
