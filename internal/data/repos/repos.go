package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos/chat"
	"github.com/yungbote/kierachat-backend/internal/data/repos/jobs"
	"github.com/yungbote/kierachat-backend/internal/data/repos/user"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type ChatSessionRepo = chat.ChatSessionRepo
type ChatMessageRepo = chat.ChatMessageRepo
type AssistantPatch = chat.AssistantPatch

type JobRunRepo = jobs.JobRunRepo

type UserSettingsRepo = user.UserSettingsRepo

func NewChatSessionRepo(db *gorm.DB, baseLog *logger.Logger) ChatSessionRepo {
	return chat.NewChatSessionRepo(db, baseLog)
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

func NewUserSettingsRepo(db *gorm.DB, baseLog *logger.Logger) UserSettingsRepo {
	return user.NewUserSettingsRepo(db, baseLog)
}
