package conversation

import (
	"github.com/cloudwego/eino/schema"

	"shopassist/internal/models"
)

// ToSchema converts stored messages to model input, preserving order.
func ToSchema(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		case models.RoleTool:
			role = schema.Tool
		default:
			role = schema.User
		}
		out := &schema.Message{
			Role:       role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, out)
	}
	return messages
}

// FromSchema converts model messages of one turn into storable messages.
// Seq and timestamps are assigned by the store.
func FromSchema(threadID string, messages []*schema.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		var role models.Role
		switch msg.Role {
		case schema.Assistant:
			role = models.RoleAssistant
		case schema.System:
			role = models.RoleSystem
		case schema.Tool:
			role = models.RoleTool
		default:
			role = models.RoleUser
		}
		m := models.Message{
			ThreadID:   threadID,
			Role:       role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, models.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out = append(out, m)
	}
	return out
}
