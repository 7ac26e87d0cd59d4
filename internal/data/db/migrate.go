package db

import (
	"fmt"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Conversation store
		&types.ChatSession{},
		&types.ChatMessage{},

		// Preferences
		&types.UserSettings{},

		// Task queue
		&types.JobRun{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
