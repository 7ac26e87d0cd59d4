package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Preferences is the free-form settings bag the client edits.
type Preferences struct {
	DefaultModel          string  `json:"defaultModel"`
	Theme                 string  `json:"theme"`
	FontSize              string  `json:"fontSize"`
	ShowThinkingByDefault bool    `json:"showThinkingByDefault"`
	AutoSaveChats         bool    `json:"autoSaveChats"`
	EnableNotifications   bool    `json:"enableNotifications"`
	Language              string  `json:"language"`
	MaxTokens             int     `json:"maxTokens"`
	Temperature           float64 `json:"temperature"`
}

func DefaultPreferences(defaultModel string) Preferences {
	return Preferences{
		DefaultModel:          defaultModel,
		Theme:                 "system",
		FontSize:              "medium",
		ShowThinkingByDefault: false,
		AutoSaveChats:         true,
		EnableNotifications:   true,
		Language:              "en",
		MaxTokens:             4000,
		Temperature:           0.7,
	}
}

type UserSettings struct {
	ID        uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID                       `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	Settings  datatypes.JSONType[Preferences] `gorm:"column:settings;type:jsonb" json:"settings"`
	CreatedAt time.Time                       `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time                       `gorm:"not null" json:"updatedAt"`
}

func (UserSettings) TableName() string { return "user_settings" }
