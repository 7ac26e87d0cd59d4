package chat

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is owned either by a signed-in user or by an anonymous id,
// never both. Ownership migration swaps one for the other in one update.
type ChatSession struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"userId,omitempty"`
	AnonymousToken *string    `gorm:"column:anonymous_token;index" json:"-"`

	Title string `gorm:"column:title;not null;default:'New Chat'" json:"title"`

	// Per-session sequencing for messages; bumped under the session row.
	NextSeq int64 `gorm:"column:next_seq;not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (ChatSession) TableName() string { return "chat_session" }

func (s *ChatSession) OwnedByUser(userID uuid.UUID) bool {
	return s != nil && s.UserID != nil && userID != uuid.Nil && *s.UserID == userID
}

func (s *ChatSession) OwnedByAnonymous(anonymousID string) bool {
	return s != nil && s.UserID == nil && s.AnonymousToken != nil && anonymousID != "" && *s.AnonymousToken == anonymousID
}
