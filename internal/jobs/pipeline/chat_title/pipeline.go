package chat_title

import (
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/kierachat-backend/internal/jobs/runtime"
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	sessionID, ok := jc.PayloadUUID("session_id")
	if !ok || sessionID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing session_id"))
		return nil
	}

	jc.Progress("title", 10)
	out, err := p.chat.GenerateTitle(jc.Ctx, chatmod.TitleInput{
		SessionID:    sessionID,
		FirstMessage: jc.PayloadString("first_message"),
	})
	if err != nil {
		jc.Fail("title", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"session_id": sessionID.String(),
		"title":      out.Title,
		"fallback":   out.Fallback,
	})
	return nil
}
