package chat_respond

import (
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type Pipeline struct {
	log  *logger.Logger
	chat chatmod.Usecases
}

func New(baseLog *logger.Logger, chat chatmod.Usecases) *Pipeline {
	log := baseLog.With("job", services.JobTypeChatRespond)
	return &Pipeline{
		log:  log,
		chat: chat.WithLog(log),
	}
}

func (p *Pipeline) Type() string { return services.JobTypeChatRespond }
