package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/pkg/pointers"
	"github.com/yungbote/kierachat-backend/internal/services"
)

const requeuedBySweep = "sweep"

type Config struct {
	Interval          time.Duration
	GenerationTimeout time.Duration
	MaxAttempts       int
	BatchSize         int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 5 * time.Minute
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

type Report struct {
	Scanned  int `json:"scanned"`
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Sweeper finds assistant placeholders stuck in is_generating and either
// hands them back to the queue or closes them out with the apology text.
type Sweeper struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.ChatSessionRepo
	messages repos.ChatMessageRepo
	jobRuns  repos.JobRunRepo
	jobs     services.JobService
	notify   services.ChatNotifier
	cfg      Config
	now      func() time.Time
}

func NewSweeper(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.ChatSessionRepo,
	messages repos.ChatMessageRepo,
	jobRuns repos.JobRunRepo,
	jobs services.JobService,
	notify services.ChatNotifier,
	cfg Config,
) *Sweeper {
	return &Sweeper{
		db:       db,
		log:      baseLog.With("component", "Sweeper"),
		sessions: sessions,
		messages: messages,
		jobRuns:  jobRuns,
		jobs:     jobs,
		notify:   notify,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting sweeper", "interval", s.cfg.Interval.String(), "generation_timeout", s.cfg.GenerationTimeout.String())
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("Sweep failed", "error", err)
				}
			}
		}
	}()
}

func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	rep := Report{}
	dbc := dbctx.Context{Ctx: ctx}
	cutoff := s.now().UTC().Add(-s.cfg.GenerationTimeout)
	stale, err := s.messages.ListStaleGenerating(dbc, cutoff, s.cfg.BatchSize)
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(stale)
	for _, msg := range stale {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		latest, err := s.jobRuns.GetLatestByEntity(dbc, services.EntityChatMessage, msg.ID, services.JobTypeChatRespond)
		if err != nil {
			s.log.Warn("Lookup of respond job failed", "message_id", msg.ID, "error", err)
			rep.Skipped++
			continue
		}
		switch s.decide(latest) {
		case actionSkip:
			rep.Skipped++
		case actionRequeue:
			if err := s.requeue(ctx, msg); err != nil {
				s.log.Warn("Requeue failed; closing placeholder instead", "message_id", msg.ID, "error", err)
				if ferr := s.forceFail(ctx, msg); ferr != nil {
					rep.Skipped++
					continue
				}
				rep.Failed++
				continue
			}
			rep.Requeued++
		case actionFail:
			if err := s.forceFail(ctx, msg); err != nil {
				s.log.Warn("Force-fail failed", "message_id", msg.ID, "error", err)
				rep.Skipped++
				continue
			}
			rep.Failed++
		}
	}
	if rep.Requeued+rep.Failed > 0 {
		s.log.Info("Sweep finished", "scanned", rep.Scanned, "requeued", rep.Requeued, "failed", rep.Failed, "skipped", rep.Skipped)
	}
	return rep, nil
}

type action int

const (
	actionSkip action = iota
	actionRequeue
	actionFail
)

func (s *Sweeper) decide(latest *types.JobRun) action {
	switch {
	case latest == nil:
		return actionRequeue
	case latest.Live():
		return actionSkip
	case latest.Status == types.JobStatusFailed && latest.Attempts < s.cfg.MaxAttempts:
		// the claim loop retries it after the retry delay
		return actionSkip
	case requeuedBefore(latest):
		return actionFail
	case latest.Status == types.JobStatusSucceeded:
		return actionRequeue
	default:
		return actionFail
	}
}

func requeuedBefore(job *types.JobRun) bool {
	rt := &jobPayload{}
	rt.decode(job)
	return rt.RequeuedBy == requeuedBySweep
}

func (s *Sweeper) requeue(ctx context.Context, msg *types.ChatMessage) error {
	session, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, msg.SessionID)
	if err != nil {
		return err
	}
	owner := ownerOf(session)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.messages.UpdateFields(inner, msg.ID, map[string]interface{}{
			"content":    "",
			"thinking":   nil,
			"updated_at": s.now().UTC(),
		}); err != nil {
			return err
		}
		id := msg.ID
		_, err := s.jobs.Enqueue(inner, owner.OwnerKey(), services.JobTypeChatRespond, services.EntityChatMessage, &id, map[string]any{
			"session_id":           msg.SessionID.String(),
			"assistant_message_id": msg.ID.String(),
			"model":                msg.Model,
			"requeued_by":          requeuedBySweep,
		})
		return err
	})
}

func (s *Sweeper) forceFail(ctx context.Context, msg *types.ChatMessage) error {
	if err := s.messages.PatchAssistant(dbctx.Context{Ctx: ctx}, msg.ID, repos.AssistantPatch{
		Content:      pointers.String(chatmod.FailureMessage),
		IsGenerating: pointers.Bool(false),
	}); err != nil {
		return err
	}
	if s.notify == nil {
		return nil
	}
	owner := ""
	if session, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, msg.SessionID); err == nil {
		owner = ownerOf(session).OwnerKey()
	}
	s.notify.MessageError(owner, services.MessagePatch{
		SessionID:    msg.SessionID,
		MessageID:    msg.ID,
		Content:      chatmod.FailureMessage,
		IsGenerating: false,
	}, "generation timed out")
	return nil
}

func ownerOf(s *types.ChatSession) ctxutil.Identity {
	if s == nil {
		return ctxutil.Identity{}
	}
	if s.UserID != nil && *s.UserID != uuid.Nil {
		return ctxutil.Identity{UserID: *s.UserID}
	}
	if s.AnonymousToken != nil {
		return ctxutil.Identity{AnonymousID: *s.AnonymousToken}
	}
	return ctxutil.Identity{}
}
