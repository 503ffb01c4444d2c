package agent

import (
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
)

const systemPrompt = `You are a helpful E-commerce Chatbot Agent for a furniture store.

IMPORTANT: You have access to an item_lookup tool that searches the furniture inventory database.
ALWAYS use this tool when customers ask about furniture items, even if the tool returns errors or empty results.

When using the item_lookup tool:
- If it returns results, provide helpful details about the furniture items
- If it returns an error or no results, acknowledge this and offer to help in other ways
- If the database appears to be empty, let the customer know that inventory might be being updated

Current time: %s`

func systemMessage(now time.Time) *schema.Message {
	return schema.SystemMessage(fmt.Sprintf(systemPrompt, now.UTC().Format(time.RFC3339)))
}

type replyKind int

const (
	replyAnswer replyKind = iota
	replyToolCalls
)

// classifyReply decides whether the loop ends on msg or runs the requested tools.
func classifyReply(msg *schema.Message) replyKind {
	if msg != nil && len(msg.ToolCalls) > 0 {
		return replyToolCalls
	}
	return replyAnswer
}
