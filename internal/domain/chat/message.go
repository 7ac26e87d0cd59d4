package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_session_seq,unique,priority:1" json:"sessionId"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_session_seq,unique,priority:2" json:"seq"`

	Role         string  `gorm:"column:role;not null;index" json:"role"`
	Content      string  `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Thinking     *string `gorm:"column:thinking;type:text" json:"thinking,omitempty"`
	IsGenerating bool    `gorm:"column:is_generating;not null;default:false;index" json:"isGenerating"`
	Model        string  `gorm:"column:model" json:"model,omitempty"`

	Attachments datatypes.JSONSlice[Attachment] `gorm:"column:attachments;type:jsonb" json:"attachments,omitempty"`

	UserID         *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"userId,omitempty"`
	AnonymousToken *string    `gorm:"column:anonymous_token;index" json:"-"`

	Timestamp time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (ChatMessage) TableName() string { return "chat_message" }
