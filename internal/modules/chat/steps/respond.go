package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
	"github.com/yungbote/kierachat-backend/internal/services"
	"github.com/yungbote/kierachat-backend/internal/tools"
)

const tracerName = "github.com/yungbote/kierachat-backend/internal/modules/chat"

type RespondDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	AI     openrouter.Client
	Models *models.Registry
	Tools  *tools.Executor

	Sessions repos.ChatSessionRepo
	Messages repos.ChatMessageRepo
	JobRuns  repos.JobRunRepo

	Notify services.ChatNotifier

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

type RespondInput struct {
	AssistantMessageID uuid.UUID
	Model              string
	JobID              uuid.UUID
	Attempt            int
}

type RespondOutput struct {
	State        string `json:"state"`
	Iterations   int    `json:"iterations"`
	ToolCalls    int    `json:"tool_calls"`
	ContentChars int    `json:"content_chars"`
}

// Respond streams one assistant reply into its placeholder message.
//
// Upstream and tool failures end in the apology text and a nil error. A
// non-nil error means the terminal write itself failed (or the context was
// canceled) and the placeholder is still generating, so the job should be
// retried.
func Respond(ctx context.Context, deps RespondDeps, in RespondInput) (RespondOutput, error) {
	out := RespondOutput{State: stateIdle.String()}
	if deps.DB == nil || deps.Log == nil || deps.AI == nil || deps.Models == nil || deps.Messages == nil || deps.Sessions == nil {
		return out, fmt.Errorf("chat respond: missing deps")
	}
	if in.AssistantMessageID == uuid.Nil {
		return out, fmt.Errorf("chat respond: missing assistant_message_id")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.respond", trace.WithAttributes(
		attribute.String("chat.message_id", in.AssistantMessageID.String()),
		attribute.Int("job.attempt", in.Attempt),
	))
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	placeholder, err := deps.Messages.GetByID(dbc, in.AssistantMessageID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		deps.Log.Info("Placeholder gone before respond started", "message_id", in.AssistantMessageID)
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if !placeholder.IsGenerating {
		out.State = stateCompleted.String()
		return out, nil
	}
	session, err := deps.Sessions.GetByID(dbc, placeholder.SessionID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	owner := sessionOwner(session)

	model := in.Model
	if model == "" {
		model = placeholder.Model
	}
	if model == "" {
		model = deps.Models.DefaultModel().ID
	}
	span.SetAttributes(attribute.String("chat.model", model))

	log := deps.Log.With("message_id", placeholder.ID, "session_id", session.ID, "model", model)
	p := &patcher{
		log:       log,
		messages:  deps.Messages,
		jobRuns:   deps.JobRuns,
		notify:    deps.Notify,
		owner:     owner.OwnerKey(),
		sessionID: session.ID,
		messageID: placeholder.ID,
		jobID:     in.JobID,
	}

	// A retried job starts from a clean placeholder.
	if in.Attempt > 1 {
		if err := deps.Messages.UpdateFields(dbc, placeholder.ID, map[string]interface{}{
			"content":  "",
			"thinking": nil,
		}); err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
			log.Warn("Failed to reset placeholder for retry", "error", err)
		}
	}

	if !deps.Models.IsModelUsable(model, owner) {
		log.Info("Model not usable by caller", "owner", p.owner)
		out.State = stateCompleted.String()
		return out, p.done(ctx, MsgAccessDenied, nil)
	}

	history, err := deps.Messages.ListRecentForContext(dbc, session.ID, placeholder.ID, ContextWindow)
	if err != nil {
		log.Error("Failed to load context", "error", err)
		out.State = stateFailed.String()
		return out, p.fail(ctx)
	}

	r := &responder{
		ai:        deps.AI,
		tools:     deps.Tools,
		log:       log,
		patch:     p,
		acc:       newStreamAccumulator(),
		model:     model,
		reasoning: deps.Models.IsReasoning(model),
		state:     stateIdle,
	}
	r.messages = append(r.messages, openrouter.ChatMessage{Role: openrouter.RoleSystem, Content: systemPrompt(deps.Now())})
	r.messages = append(r.messages, buildContextMessages(history, deps.Models.SupportsVision(model))...)

	stopHeartbeat := p.keepAlive(ctx, heartbeatEvery)
	runErr := r.run(ctx)
	stopHeartbeat()
	out.Iterations = r.iteration
	out.ToolCalls = r.toolCalls
	out.ContentChars = r.acc.content.Len()
	span.SetAttributes(
		attribute.Int("chat.iterations", r.iteration),
		attribute.Int("chat.tool_calls", r.toolCalls),
	)

	switch {
	case errors.Is(runErr, errPlaceholderGone):
		log.Info("Placeholder deleted mid-stream; stopping")
		out.State = stateFailed.String()
		return out, nil
	case runErr != nil && ctx.Err() != nil:
		// Shutdown: leave the placeholder generating so the job is reclaimed.
		span.SetStatus(codes.Error, "canceled")
		return out, ctx.Err()
	case runErr != nil:
		log.Error("Respond failed", "state", r.state.String(), "iteration", r.iteration, "error", runErr)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.state = stateFailed
		out.State = r.state.String()
		return out, p.fail(ctx)
	}

	final := r.acc.content.String()
	if final == "" {
		final = MsgEmptyReply
	}
	out.State = r.state.String()
	return out, p.done(ctx, final, r.acc.thinkingPtr())
}

func sessionOwner(s *types.ChatSession) ctxutil.Identity {
	if s == nil {
		return ctxutil.Identity{}
	}
	if s.UserID != nil {
		return ctxutil.Identity{UserID: *s.UserID}
	}
	if s.AnonymousToken != nil {
		return ctxutil.Identity{AnonymousID: *s.AnonymousToken}
	}
	return ctxutil.Identity{}
}
