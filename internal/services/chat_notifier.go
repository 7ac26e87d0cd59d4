package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/realtime"
)

// ChatNotifier publishes chat changes on the owner's SSE channel.
// owner is an identity owner key; an empty key drops the event.
type ChatNotifier interface {
	SessionCreated(owner string, session *types.ChatSession)
	SessionUpdated(owner string, session *types.ChatSession)
	SessionDeleted(owner string, sessionID uuid.UUID)
	MessageCreated(owner string, msg *types.ChatMessage)
	MessagePatched(owner string, patch MessagePatch)
	MessageDone(owner string, patch MessagePatch)
	MessageError(owner string, patch MessagePatch, errMsg string)
}

// MessagePatch is the client-facing view of an assistant placeholder update.
type MessagePatch struct {
	SessionID    uuid.UUID `json:"sessionId"`
	MessageID    uuid.UUID `json:"messageId"`
	Content      string    `json:"content"`
	Thinking     *string   `json:"thinking,omitempty"`
	IsGenerating bool      `json:"isGenerating"`
}

type chatNotifier struct {
	emit SSEEmitter
}

func NewChatNotifier(emit SSEEmitter) ChatNotifier {
	return &chatNotifier{emit: emit}
}

func (n *chatNotifier) send(owner string, event realtime.SSEEvent, data any) {
	if n == nil || n.emit == nil || owner == "" {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: owner,
		Event:   event,
		Data:    data,
	})
}

func (n *chatNotifier) SessionCreated(owner string, session *types.ChatSession) {
	n.send(owner, realtime.SSEEventChatSessionCreated, map[string]any{"session": session})
}

func (n *chatNotifier) SessionUpdated(owner string, session *types.ChatSession) {
	n.send(owner, realtime.SSEEventChatSessionUpdated, map[string]any{"session": session})
}

func (n *chatNotifier) SessionDeleted(owner string, sessionID uuid.UUID) {
	n.send(owner, realtime.SSEEventChatSessionDeleted, map[string]any{"sessionId": sessionID})
}

func (n *chatNotifier) MessageCreated(owner string, msg *types.ChatMessage) {
	if msg == nil {
		return
	}
	n.send(owner, realtime.SSEEventChatMessageCreated, map[string]any{"sessionId": msg.SessionID, "message": msg})
}

func (n *chatNotifier) MessagePatched(owner string, patch MessagePatch) {
	n.send(owner, realtime.SSEEventChatMessagePatched, patch)
}

func (n *chatNotifier) MessageDone(owner string, patch MessagePatch) {
	n.send(owner, realtime.SSEEventChatMessageDone, patch)
}

func (n *chatNotifier) MessageError(owner string, patch MessagePatch, errMsg string) {
	n.send(owner, realtime.SSEEventChatMessageError, map[string]any{
		"sessionId":    patch.SessionID,
		"messageId":    patch.MessageID,
		"content":      patch.Content,
		"isGenerating": patch.IsGenerating,
		"error":        errMsg,
	})
}
