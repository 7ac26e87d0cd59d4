package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

const (
	MaxMessageChars = 20000
	MaxTitleChars   = 200
)

type SendInput struct {
	// SessionID nil creates a new session around the message.
	SessionID   *uuid.UUID
	Content     string
	Model       string
	Attachments []types.Attachment
}

type SendResult struct {
	SessionID          uuid.UUID `json:"sessionId"`
	UserMessageID      uuid.UUID `json:"userMessageId,omitempty"`
	AssistantMessageID uuid.UUID `json:"assistantMessageId"`
	JobID              uuid.UUID `json:"jobId"`
	CreatedSession     bool      `json:"createdSession"`
}

type ChatService interface {
	ListSessions(dbc dbctx.Context, who ctxutil.Identity) ([]*types.ChatSession, error)
	GetSession(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) (*types.ChatSession, error)
	// ValidateAccess reports whether who owns the session; a missing session is simply false.
	ValidateAccess(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) (bool, error)
	CreateSession(dbc dbctx.Context, who ctxutil.Identity, firstMessage string) (*types.ChatSession, error)
	UpdateSessionTitle(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, title string) (*types.ChatSession, error)
	DeleteSession(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) error

	ListMessages(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) ([]*types.ChatMessage, error)
	// SendMessage appends the user turn plus a generating placeholder and
	// enqueues chat_respond in the same transaction.
	SendMessage(dbc dbctx.Context, who ctxutil.Identity, in SendInput) (*SendResult, error)
	// EditFrom drops the target message and everything after it, then sends content as a fresh turn.
	EditFrom(dbc dbctx.Context, who ctxutil.Identity, messageID uuid.UUID, content string, model string) (*SendResult, error)
	// Regenerate replaces the latest assistant reply without adding a user message.
	Regenerate(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, model string) (*SendResult, error)
	UpdateMessage(dbc dbctx.Context, who ctxutil.Identity, messageID uuid.UUID, content string) (*types.ChatMessage, error)
	PatchAssistantMessage(dbc dbctx.Context, messageID uuid.UUID, patch repos.AssistantPatch) error

	// MigrateOwnership moves an anonymous id's sessions and messages to userID.
	// It returns sessions plus messages moved; a second run returns 0.
	MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error)
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	models   *models.Registry
	sessions repos.ChatSessionRepo
	messages repos.ChatMessageRepo
	jobs     JobService
	notify   ChatNotifier
}

func NewChatService(
	db *gorm.DB,
	baseLog *logger.Logger,
	registry *models.Registry,
	sessionRepo repos.ChatSessionRepo,
	messageRepo repos.ChatMessageRepo,
	jobService JobService,
	notify ChatNotifier,
) ChatService {
	if notify == nil {
		notify = NewChatNotifier(nil)
	}
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		models:   registry,
		sessions: sessionRepo,
		messages: messageRepo,
		jobs:     jobService,
		notify:   notify,
	}
}

func (s *chatService) repoCtx(dbc dbctx.Context) dbctx.Context {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	return dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
}

func owns(who ctxutil.Identity, session *types.ChatSession) bool {
	switch {
	case who.Authenticated():
		return session.OwnedByUser(who.UserID)
	case who.Anonymous():
		return session.OwnedByAnonymous(who.AnonymousID)
	default:
		return false
	}
}

// authorize loads a session the caller owns.
func (s *chatService) authorize(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) (*types.ChatSession, error) {
	if who.Empty() {
		return nil, pkgerrors.ErrUnauthorized
	}
	session, err := s.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if !owns(who, session) {
		return nil, fmt.Errorf("session %s: %w", sessionID, pkgerrors.ErrPermissionDenied)
	}
	return session, nil
}

func (s *chatService) ListSessions(dbc dbctx.Context, who ctxutil.Identity) ([]*types.ChatSession, error) {
	if who.Empty() {
		return []*types.ChatSession{}, nil
	}
	return s.sessions.ListByOwner(s.repoCtx(dbc), who, 0)
}

func (s *chatService) GetSession(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) (*types.ChatSession, error) {
	return s.authorize(s.repoCtx(dbc), who, sessionID)
}

func (s *chatService) ValidateAccess(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) (bool, error) {
	if who.Empty() {
		return false, nil
	}
	session, err := s.sessions.GetByID(s.repoCtx(dbc), sessionID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owns(who, session), nil
}

func newSession(who ctxutil.Identity, firstMessage string) *types.ChatSession {
	now := time.Now().UTC()
	session := &types.ChatSession{
		ID:        uuid.New(),
		Title:     types.PreviewTitle(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if who.Authenticated() {
		uid := who.UserID
		session.UserID = &uid
	} else {
		anon := who.AnonymousID
		session.AnonymousToken = &anon
	}
	return session
}

func (s *chatService) CreateSession(dbc dbctx.Context, who ctxutil.Identity, firstMessage string) (*types.ChatSession, error) {
	if who.Empty() {
		return nil, pkgerrors.ErrUnauthorized
	}
	session := newSession(who, firstMessage)
	if _, err := s.sessions.Create(s.repoCtx(dbc), []*types.ChatSession{session}); err != nil {
		return nil, err
	}
	s.enqueueTitle(dbc, who, session.ID, firstMessage)
	s.notify.SessionCreated(who.OwnerKey(), session)
	return session, nil
}

// enqueueTitle is fire-and-forget: a session keeps its preview title when it fails.
func (s *chatService) enqueueTitle(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, firstMessage string) {
	if strings.TrimSpace(firstMessage) == "" || s.jobs == nil {
		return
	}
	id := sessionID
	if _, err := s.jobs.Enqueue(dbctx.Context{Ctx: dbc.Ctx}, who.OwnerKey(), JobTypeChatTitle, EntityChatSession, &id, map[string]any{
		"session_id":    sessionID.String(),
		"first_message": firstMessage,
	}); err != nil {
		s.log.Warn("Failed to enqueue title job", "session_id", sessionID, "error", err)
	}
}

func (s *chatService) UpdateSessionTitle(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, title string) (*types.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is empty: %w", pkgerrors.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(title) > MaxTitleChars {
		return nil, fmt.Errorf("title longer than %d characters: %w", MaxTitleChars, pkgerrors.ErrInvalidArgument)
	}
	repoCtx := s.repoCtx(dbc)
	if _, err := s.authorize(repoCtx, who, sessionID); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateFields(repoCtx, sessionID, map[string]interface{}{"title": title}); err != nil {
		return nil, err
	}
	session, err := s.sessions.GetByID(repoCtx, sessionID)
	if err != nil {
		return nil, err
	}
	s.notify.SessionUpdated(who.OwnerKey(), session)
	return session, nil
}

func (s *chatService) DeleteSession(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) error {
	repoCtx := s.repoCtx(dbc)
	if _, err := s.authorize(repoCtx, who, sessionID); err != nil {
		return err
	}
	n, err := s.messages.DeleteBySession(repoCtx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteByID(repoCtx, sessionID); err != nil {
		return err
	}
	s.log.Info("Session deleted", "session_id", sessionID, "messages", n)
	s.notify.SessionDeleted(who.OwnerKey(), sessionID)
	return nil
}

func (s *chatService) ListMessages(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID) ([]*types.ChatMessage, error) {
	repoCtx := s.repoCtx(dbc)
	if _, err := s.authorize(repoCtx, who, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListBySession(repoCtx, sessionID)
}

func normalizeContent(content string, attachments []types.Attachment) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return "", fmt.Errorf("message is empty: %w", pkgerrors.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(content) > MaxMessageChars {
		return "", fmt.Errorf("message longer than %d characters: %w", MaxMessageChars, pkgerrors.ErrInvalidArgument)
	}
	if err := types.ValidateAttachments(attachments); err != nil {
		return "", err
	}
	return content, nil
}

// resolveModel maps "" to the catalogue default. Unknown ids are rejected
// here; gated ids pass so the reply itself can carry the denial.
func (s *chatService) resolveModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return s.models.DefaultModel().ID, nil
	}
	if _, ok := s.models.Lookup(model); !ok {
		return "", fmt.Errorf("unknown model %q: %w", model, pkgerrors.ErrInvalidArgument)
	}
	return model, nil
}

func ownerColumns(who ctxutil.Identity) (*uuid.UUID, *string) {
	if who.Authenticated() {
		uid := who.UserID
		return &uid, nil
	}
	anon := who.AnonymousID
	return nil, &anon
}

// appendTurn writes an optional user message and a placeholder at the end of
// the session and enqueues the reply. It must run inside a transaction.
func (s *chatService) appendTurn(inner dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, user *types.ChatMessage, model string) (*types.ChatMessage, *types.JobRun, error) {
	if _, err := s.sessions.LockByID(inner, sessionID); err != nil {
		return nil, nil, err
	}
	n := int64(1)
	if user != nil {
		n = 2
	}
	seq, err := s.sessions.ReserveSeq(inner, sessionID, n)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	userID, anon := ownerColumns(who)
	rows := make([]*types.ChatMessage, 0, 2)
	if user != nil {
		user.ID = uuid.New()
		user.SessionID = sessionID
		user.Seq = seq
		user.Role = types.RoleUser
		user.UserID = userID
		user.AnonymousToken = anon
		user.Timestamp = now
		rows = append(rows, user)
		seq++
	}
	placeholder := &types.ChatMessage{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Seq:            seq,
		Role:           types.RoleAssistant,
		Content:        "",
		IsGenerating:   true,
		Model:          model,
		UserID:         userID,
		AnonymousToken: anon,
		Timestamp:      now,
	}
	rows = append(rows, placeholder)
	if _, err := s.messages.Create(inner, rows); err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Touch(inner, sessionID); err != nil {
		return nil, nil, err
	}
	id := placeholder.ID
	payload := map[string]any{
		"session_id":           sessionID.String(),
		"assistant_message_id": placeholder.ID.String(),
		"model":                model,
	}
	if user != nil {
		payload["user_message_id"] = user.ID.String()
	}
	job, err := s.jobs.Enqueue(inner, who.OwnerKey(), JobTypeChatRespond, EntityChatMessage, &id, payload)
	if err != nil {
		return nil, nil, err
	}
	return placeholder, job, nil
}

func (s *chatService) SendMessage(dbc dbctx.Context, who ctxutil.Identity, in SendInput) (*SendResult, error) {
	if who.Empty() {
		return nil, pkgerrors.ErrUnauthorized
	}
	content, err := normalizeContent(in.Content, in.Attachments)
	if err != nil {
		return nil, err
	}
	model, err := s.resolveModel(in.Model)
	if err != nil {
		return nil, err
	}

	repoCtx := s.repoCtx(dbc)
	var created *types.ChatSession
	sessionID := uuid.Nil
	if in.SessionID != nil && *in.SessionID != uuid.Nil {
		if _, err := s.authorize(repoCtx, who, *in.SessionID); err != nil {
			return nil, err
		}
		sessionID = *in.SessionID
	} else {
		created = newSession(who, content)
		sessionID = created.ID
	}

	user := &types.ChatMessage{Content: content, Model: model, Attachments: in.Attachments}
	var (
		placeholder *types.ChatMessage
		job         *types.JobRun
	)
	err = repoCtx.Tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		if created != nil {
			if _, err := s.sessions.Create(inner, []*types.ChatSession{created}); err != nil {
				return err
			}
		}
		var err error
		placeholder, job, err = s.appendTurn(inner, who, sessionID, user, model)
		return err
	})
	if err != nil {
		return nil, err
	}

	owner := who.OwnerKey()
	if created != nil {
		s.enqueueTitle(dbc, who, created.ID, content)
		s.notify.SessionCreated(owner, created)
	}
	s.notify.MessageCreated(owner, user)
	s.notify.MessageCreated(owner, placeholder)
	s.log.Debug("Message sent", "session_id", sessionID, "assistant_message_id", placeholder.ID, "model", model)

	return &SendResult{
		SessionID:          sessionID,
		UserMessageID:      user.ID,
		AssistantMessageID: placeholder.ID,
		JobID:              job.ID,
		CreatedSession:     created != nil,
	}, nil
}

func (s *chatService) EditFrom(dbc dbctx.Context, who ctxutil.Identity, messageID uuid.UUID, content string, model string) (*SendResult, error) {
	if who.Empty() {
		return nil, pkgerrors.ErrUnauthorized
	}
	repoCtx := s.repoCtx(dbc)
	target, err := s.messages.GetByID(repoCtx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(repoCtx, who, target.SessionID); err != nil {
		return nil, err
	}
	if target.Role != types.RoleUser {
		return nil, fmt.Errorf("only user messages can be edited: %w", pkgerrors.ErrInvalidArgument)
	}
	attachments := []types.Attachment(target.Attachments)
	content, err = normalizeContent(content, attachments)
	if err != nil {
		return nil, err
	}
	model, err = s.resolveModel(model)
	if err != nil {
		return nil, err
	}

	user := &types.ChatMessage{Content: content, Model: model, Attachments: target.Attachments}
	var (
		placeholder *types.ChatMessage
		job         *types.JobRun
		removed     int64
	)
	err = repoCtx.Tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		var err error
		if removed, err = s.messages.DeleteFromSeq(inner, target.SessionID, target.Seq); err != nil {
			return err
		}
		placeholder, job, err = s.appendTurn(inner, who, target.SessionID, user, model)
		return err
	})
	if err != nil {
		return nil, err
	}

	owner := who.OwnerKey()
	s.log.Debug("Edited from message", "session_id", target.SessionID, "seq", target.Seq, "removed", removed)
	if session, err := s.sessions.GetByID(repoCtx, target.SessionID); err == nil {
		s.notify.SessionUpdated(owner, session)
	}
	s.notify.MessageCreated(owner, user)
	s.notify.MessageCreated(owner, placeholder)
	return &SendResult{
		SessionID:          target.SessionID,
		UserMessageID:      user.ID,
		AssistantMessageID: placeholder.ID,
		JobID:              job.ID,
	}, nil
}

func (s *chatService) Regenerate(dbc dbctx.Context, who ctxutil.Identity, sessionID uuid.UUID, model string) (*SendResult, error) {
	repoCtx := s.repoCtx(dbc)
	if _, err := s.authorize(repoCtx, who, sessionID); err != nil {
		return nil, err
	}
	var (
		placeholder *types.ChatMessage
		job         *types.JobRun
	)
	err := repoCtx.Tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		removed, err := s.messages.DeleteLastAssistant(inner, sessionID)
		if err != nil {
			return err
		}
		lastUser, err := s.messages.LatestByRole(inner, sessionID, types.RoleUser)
		if err != nil {
			return err
		}
		if lastUser == nil {
			return fmt.Errorf("no user message to answer: %w", pkgerrors.ErrInvalidArgument)
		}
		if strings.TrimSpace(model) == "" && removed != nil {
			model = removed.Model
		}
		if model, err = s.resolveModel(model); err != nil {
			return err
		}
		placeholder, job, err = s.appendTurn(inner, who, sessionID, nil, model)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify.MessageCreated(who.OwnerKey(), placeholder)
	return &SendResult{
		SessionID:          sessionID,
		AssistantMessageID: placeholder.ID,
		JobID:              job.ID,
	}, nil
}

func (s *chatService) UpdateMessage(dbc dbctx.Context, who ctxutil.Identity, messageID uuid.UUID, content string) (*types.ChatMessage, error) {
	if who.Empty() {
		return nil, pkgerrors.ErrUnauthorized
	}
	repoCtx := s.repoCtx(dbc)
	msg, err := s.messages.GetByID(repoCtx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(repoCtx, who, msg.SessionID); err != nil {
		return nil, err
	}
	content, err = normalizeContent(content, msg.Attachments)
	if err != nil {
		return nil, err
	}
	if err := s.messages.UpdateFields(repoCtx, messageID, map[string]interface{}{"content": content}); err != nil {
		return nil, err
	}
	msg.Content = content
	s.notify.MessagePatched(who.OwnerKey(), MessagePatch{
		SessionID:    msg.SessionID,
		MessageID:    msg.ID,
		Content:      msg.Content,
		Thinking:     msg.Thinking,
		IsGenerating: msg.IsGenerating,
	})
	return msg, nil
}

func (s *chatService) PatchAssistantMessage(dbc dbctx.Context, messageID uuid.UUID, patch repos.AssistantPatch) error {
	return s.messages.PatchAssistant(s.repoCtx(dbc), messageID, patch)
}

func (s *chatService) MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error) {
	anonymousID = strings.TrimSpace(anonymousID)
	if anonymousID == "" || userID == uuid.Nil {
		return 0, fmt.Errorf("migrate: missing anonymous id or user: %w", pkgerrors.ErrInvalidArgument)
	}
	repoCtx := s.repoCtx(dbc)
	var total int64
	err := repoCtx.Tx.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		n, err := s.sessions.MigrateOwnership(inner, anonymousID, userID)
		if err != nil {
			return err
		}
		m, err := s.messages.MigrateOwnership(inner, anonymousID, userID)
		if err != nil {
			return err
		}
		total = n + m
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		s.log.Info("Migrated anonymous chats", "user_id", userID, "rows", total)
		if sessions, err := s.sessions.ListByOwner(repoCtx, ctxutil.Identity{UserID: userID}, 0); err == nil {
			owner := ctxutil.Identity{UserID: userID}.OwnerKey()
			for _, session := range sessions {
				s.notify.SessionUpdated(owner, session)
			}
		}
	}
	return total, nil
}
