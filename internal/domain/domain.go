package domain

import (
	"github.com/yungbote/kierachat-backend/internal/domain/chat"
	"github.com/yungbote/kierachat-backend/internal/domain/jobs"
	"github.com/yungbote/kierachat-backend/internal/domain/user"
)

type (
	ChatSession = chat.ChatSession
	ChatMessage = chat.ChatMessage
	Attachment  = chat.Attachment

	JobRun = jobs.JobRun

	UserSettings = user.UserSettings
	Preferences  = user.Preferences
)

const (
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant

	AttachmentImage = chat.AttachmentImage
	AttachmentPDF   = chat.AttachmentPDF
)

const (
	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
)

var DefaultPreferences = user.DefaultPreferences

const DefaultSessionTitle = chat.DefaultTitle

var (
	PreviewTitle        = chat.PreviewTitle
	ValidateAttachments = chat.ValidateAttachments
)
