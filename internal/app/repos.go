package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type Repos struct {
	ChatSession  repos.ChatSessionRepo
	ChatMessage  repos.ChatMessageRepo
	JobRun       repos.JobRunRepo
	UserSettings repos.UserSettingsRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		ChatSession:  repos.NewChatSessionRepo(db, log),
		ChatMessage:  repos.NewChatMessageRepo(db, log),
		JobRun:       repos.NewJobRunRepo(db, log),
		UserSettings: repos.NewUserSettingsRepo(db, log),
	}
}
