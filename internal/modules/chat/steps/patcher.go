package steps

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

var errPlaceholderGone = errors.New("placeholder message deleted")

// patcher is the only writer of the placeholder while a reply streams. Every
// write also fans out over SSE and heartbeats the job row.
type patcher struct {
	log      *logger.Logger
	messages repos.ChatMessageRepo
	jobRuns  repos.JobRunRepo
	notify   services.ChatNotifier

	owner     string
	sessionID uuid.UUID
	messageID uuid.UUID
	jobID     uuid.UUID
}

func (p *patcher) write(ctx context.Context, content string, thinking *string, generating bool) error {
	dbc := dbctx.Context{Ctx: ctx}
	err := p.messages.PatchAssistant(dbc, p.messageID, repos.AssistantPatch{
		Content:      &content,
		Thinking:     thinking,
		IsGenerating: &generating,
	})
	if err != nil {
		return err
	}
	if p.jobRuns != nil && p.jobID != uuid.Nil {
		if err := p.jobRuns.Heartbeat(dbc, p.jobID); err != nil {
			p.log.Debug("Job heartbeat failed", "job_id", p.jobID, "error", err)
		}
	}
	return nil
}

// keepAlive heartbeats the job row on every tick until stop is called.
func (p *patcher) keepAlive(ctx context.Context, every time.Duration) (stop func()) {
	if p.jobRuns == nil || p.jobID == uuid.Nil || every <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.jobRuns.Heartbeat(dbctx.Context{Ctx: ctx}, p.jobID); err != nil && ctx.Err() == nil {
					p.log.Debug("Job heartbeat failed", "job_id", p.jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *patcher) view(content string, thinking *string, generating bool) services.MessagePatch {
	return services.MessagePatch{
		SessionID:    p.sessionID,
		MessageID:    p.messageID,
		Content:      content,
		Thinking:     thinking,
		IsGenerating: generating,
	}
}

// progress writes an in-flight update. Only a vanished placeholder is
// reported back; other write errors are logged and streaming continues.
func (p *patcher) progress(ctx context.Context, content string, thinking *string) error {
	if err := p.write(ctx, content, thinking, true); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return errPlaceholderGone
		}
		p.log.Warn("Progress patch failed", "error", err)
		return nil
	}
	if p.notify != nil {
		p.notify.MessagePatched(p.owner, p.view(content, thinking, true))
	}
	return nil
}

func (p *patcher) done(ctx context.Context, content string, thinking *string) error {
	if err := p.write(ctx, content, thinking, false); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.notify != nil {
		p.notify.MessageDone(p.owner, p.view(content, thinking, false))
	}
	return nil
}

func (p *patcher) fail(ctx context.Context) error {
	if err := p.write(ctx, MsgFailure, nil, false); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.notify != nil {
		p.notify.MessageError(p.owner, p.view(MsgFailure, nil, false), MsgFailure)
	}
	return nil
}
