package chat

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/modules/chat/steps"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
	"github.com/yungbote/kierachat-backend/internal/services"
	"github.com/yungbote/kierachat-backend/internal/tools"
)

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	AI     openrouter.Client
	Titles steps.TitleCompleter
	Models *models.Registry
	Tools  *tools.Executor

	Sessions repos.ChatSessionRepo
	Messages repos.ChatMessageRepo
	JobRuns  repos.JobRunRepo

	Notify services.ChatNotifier
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases { return Usecases{deps: deps} }

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

type (
	RespondInput  = steps.RespondInput
	RespondOutput = steps.RespondOutput

	TitleInput  = steps.TitleInput
	TitleOutput = steps.TitleOutput
)

func (u Usecases) Respond(ctx context.Context, in RespondInput) (RespondOutput, error) {
	return steps.Respond(ctx, steps.RespondDeps{
		DB:       u.deps.DB,
		Log:      u.deps.Log,
		AI:       u.deps.AI,
		Models:   u.deps.Models,
		Tools:    u.deps.Tools,
		Sessions: u.deps.Sessions,
		Messages: u.deps.Messages,
		JobRuns:  u.deps.JobRuns,
		Notify:   u.deps.Notify,
	}, in)
}

func (u Usecases) GenerateTitle(ctx context.Context, in TitleInput) (TitleOutput, error) {
	return steps.GenerateTitle(ctx, steps.TitleDeps{
		Log:      u.deps.Log,
		AI:       u.deps.Titles,
		Sessions: u.deps.Sessions,
		Notify:   u.deps.Notify,
	}, in)
}

// FailureMessage is the apology written when a reply could not be produced.
const FailureMessage = steps.MsgFailure
