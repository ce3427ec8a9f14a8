package routing

import (
	"strings"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

// ConversationID derives a stable conversation id from an inbound message.
// Direct chats map to one conversation per channel and chat; in group
// chats every sender gets their own conversation so customers sharing a
// room never see each other's context.
func ConversationID(msg domain.InboundMessage) string {
	parts := []string{msg.ChannelID, msg.ChatID}
	if msg.ChatType == domain.ChatTypeGroup {
		parts = append(parts, msg.From)
	}
	return strings.ToLower(strings.Join(parts, ":"))
}

// replyTarget determines where to send the response.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}
