package chat_respond

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/kierachat-backend/internal/jobs/runtime"
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	asstMsgID, ok := jc.PayloadUUID("assistant_message_id")
	if !ok || asstMsgID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing assistant_message_id"))
		return nil
	}

	jc.Progress("respond", 5)
	out, err := p.chat.Respond(jc.Ctx, chatmod.RespondInput{
		AssistantMessageID: asstMsgID,
		Model:              jc.PayloadString("model"),
		JobID:              jc.Job.ID,
		Attempt:            jc.Job.Attempts,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && jc.Ctx.Err() != nil {
			return err
		}
		jc.Fail("respond", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"assistant_message_id": asstMsgID.String(),
		"state":                out.State,
		"iterations":           out.Iterations,
		"tool_calls":           out.ToolCalls,
		"content_chars":        out.ContentChars,
	})
	return nil
}
