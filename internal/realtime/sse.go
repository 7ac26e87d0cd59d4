package realtime

type SSEEvent string

const (
	SSEEventChatSessionCreated SSEEvent = "ChatSessionCreated"
	SSEEventChatSessionUpdated SSEEvent = "ChatSessionUpdated"
	SSEEventChatSessionDeleted SSEEvent = "ChatSessionDeleted"
	SSEEventChatMessageCreated SSEEvent = "ChatMessageCreated"
	SSEEventChatMessagePatched SSEEvent = "ChatMessagePatched"
	SSEEventChatMessageDone    SSEEvent = "ChatMessageDone"
	SSEEventChatMessageError   SSEEvent = "ChatMessageError"
)

// SSEMessage is what travels through the hub and the cross-instance bus.
// Channel is an identity owner key ("user:<uuid>" or "anon:<id>").
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
