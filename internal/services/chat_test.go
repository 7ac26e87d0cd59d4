package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	"github.com/yungbote/kierachat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/realtime"
)

type captureEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (c *captureEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureEmitter) count(event realtime.SSEEvent) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

type chatFixture struct {
	db       *gorm.DB
	svc      ChatService
	jobs     JobService
	messages repos.ChatMessageRepo
	emit     *captureEmitter
	dbc      dbctx.Context
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	sessions := repos.NewChatSessionRepo(db, log)
	messages := repos.NewChatMessageRepo(db, log)
	jobs := NewJobService(db, log, repos.NewJobRunRepo(db, log))
	emit := &captureEmitter{}
	svc := NewChatService(db, log, models.Default(), sessions, messages, jobs, NewChatNotifier(emit))
	return &chatFixture{db: db, svc: svc, jobs: jobs, messages: messages, emit: emit, dbc: dbctx.Context{Ctx: context.Background()}}
}

func (f *chatFixture) roles(t *testing.T, who ctxutil.Identity, sessionID uuid.UUID) []string {
	t.Helper()
	msgs, err := f.svc.ListMessages(f.dbc, who, sessionID)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

func TestSendMessageCreatesSessionAndPlaceholder(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{AnonymousID: uuid.NewString()}

	res, err := f.svc.SendMessage(f.dbc, who, SendInput{Content: "  what is the tallest mountain on earth?  "})
	require.NoError(t, err)
	require.True(t, res.CreatedSession)

	session, err := f.svc.GetSession(f.dbc, who, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, "what is the tallest mountai...", session.Title)

	msgs, err := f.svc.ListMessages(f.dbc, who, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, res.UserMessageID, msgs[0].ID)
	require.Equal(t, "what is the tallest mountain on earth?", msgs[0].Content)
	require.Equal(t, res.AssistantMessageID, msgs[1].ID)
	require.True(t, msgs[1].IsGenerating)
	require.Empty(t, msgs[1].Content)
	require.Equal(t, models.Default().DefaultModel().ID, msgs[1].Model)
	require.Less(t, msgs[0].Seq, msgs[1].Seq)

	job, err := f.jobs.GetLatestForEntity(f.dbc, EntityChatMessage, res.AssistantMessageID, JobTypeChatRespond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, res.JobID, job.ID)
	require.Equal(t, who.OwnerKey(), job.OwnerKey)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	require.Equal(t, res.AssistantMessageID.String(), payload["assistant_message_id"])

	title, err := f.jobs.GetLatestForEntity(f.dbc, EntityChatSession, res.SessionID, JobTypeChatTitle)
	require.NoError(t, err)
	require.NotNil(t, title)

	require.Equal(t, 1, f.emit.count(realtime.SSEEventChatSessionCreated))
	require.Equal(t, 2, f.emit.count(realtime.SSEEventChatMessageCreated))
}

func TestSendMessageValidation(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{UserID: uuid.New()}

	_, err := f.svc.SendMessage(f.dbc, who, SendInput{Content: "   "})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = f.svc.SendMessage(f.dbc, who, SendInput{Content: strings.Repeat("a", MaxMessageChars+1)})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = f.svc.SendMessage(f.dbc, who, SendInput{Content: "hi", Model: "acme/nope"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = f.svc.SendMessage(f.dbc, ctxutil.Identity{}, SendInput{Content: "hi"})
	require.ErrorIs(t, err, pkgerrors.ErrUnauthorized)

	// attachments alone are a valid turn
	res, err := f.svc.SendMessage(f.dbc, who, SendInput{Attachments: []types.Attachment{
		{Type: types.AttachmentImage, Filename: "a.png", MimeType: "image/png", Size: 10},
	}})
	require.NoError(t, err)
	require.Equal(t, types.DefaultSessionTitle, mustSession(t, f, who, res.SessionID).Title)

	// gated models are accepted here; the reply carries the denial
	_, err = f.svc.SendMessage(f.dbc, ctxutil.Identity{AnonymousID: "anon-1"}, SendInput{Content: "hi", Model: "openai/o4-mini"})
	require.NoError(t, err)
}

func mustSession(t *testing.T, f *chatFixture, who ctxutil.Identity, id uuid.UUID) *types.ChatSession {
	t.Helper()
	s, err := f.svc.GetSession(f.dbc, who, id)
	require.NoError(t, err)
	return s
}

func TestAccessChecks(t *testing.T) {
	f := newChatFixture(t)
	owner := ctxutil.Identity{UserID: uuid.New()}
	anon := ctxutil.Identity{AnonymousID: "anon-a"}
	userSession := testutil.SeedUserSession(t, f.db, owner.UserID)
	anonSession := testutil.SeedAnonymousSession(t, f.db, anon.AnonymousID)

	cases := []struct {
		name    string
		who     ctxutil.Identity
		session uuid.UUID
		want    bool
	}{
		{"owner", owner, userSession.ID, true},
		{"other user", ctxutil.Identity{UserID: uuid.New()}, userSession.ID, false},
		{"anon on user session", anon, userSession.ID, false},
		{"anon owner", anon, anonSession.ID, true},
		{"other anon", ctxutil.Identity{AnonymousID: "anon-b"}, anonSession.ID, false},
		{"user on anon session", owner, anonSession.ID, false},
		{"missing", owner, uuid.New(), false},
		{"nobody", ctxutil.Identity{}, userSession.ID, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := f.svc.ValidateAccess(f.dbc, tc.who, tc.session)
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}

	_, err := f.svc.ListMessages(f.dbc, ctxutil.Identity{UserID: uuid.New()}, userSession.ID)
	require.ErrorIs(t, err, pkgerrors.ErrPermissionDenied)
	_, err = f.svc.ListMessages(f.dbc, owner, uuid.New())
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestEditFromTruncatesAndResends(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{UserID: uuid.New()}
	s := testutil.SeedUserSession(t, f.db, who.UserID)
	seeded := testutil.SeedMessages(t, f.db, s, types.RoleUser, types.RoleAssistant, types.RoleUser, types.RoleAssistant)

	res, err := f.svc.EditFrom(f.dbc, who, seeded[2].ID, "rephrased question", "")
	require.NoError(t, err)
	require.Equal(t, s.ID, res.SessionID)

	msgs, err := f.svc.ListMessages(f.dbc, who, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, seeded[0].ID, msgs[0].ID)
	require.Equal(t, seeded[1].ID, msgs[1].ID)
	require.Equal(t, "rephrased question", msgs[2].Content)
	require.Equal(t, res.AssistantMessageID, msgs[3].ID)
	require.True(t, msgs[3].IsGenerating)
	require.Greater(t, msgs[2].Seq, seeded[3].Seq)

	_, err = f.svc.EditFrom(f.dbc, who, msgs[1].ID, "x", "")
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

	_, err = f.svc.EditFrom(f.dbc, ctxutil.Identity{UserID: uuid.New()}, msgs[2].ID, "x", "")
	require.ErrorIs(t, err, pkgerrors.ErrPermissionDenied)
}

func TestRegenerateReplacesLastAssistant(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{UserID: uuid.New()}
	s := testutil.SeedUserSession(t, f.db, who.UserID)
	seeded := testutil.SeedMessages(t, f.db, s, types.RoleUser, types.RoleAssistant)
	require.NoError(t, f.db.Model(&types.ChatMessage{}).Where("id = ?", seeded[1].ID).Update("model", "deepseek/deepseek-r1-0528").Error)

	res, err := f.svc.Regenerate(f.dbc, who, s.ID, "")
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, res.UserMessageID)
	require.Equal(t, []string{types.RoleUser, types.RoleAssistant}, f.roles(t, who, s.ID))

	msg, err := f.messages.GetByID(f.dbc, res.AssistantMessageID)
	require.NoError(t, err)
	require.True(t, msg.IsGenerating)
	require.Equal(t, "deepseek/deepseek-r1-0528", msg.Model)

	_, err = f.messages.GetByID(f.dbc, seeded[1].ID)
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)

	empty := testutil.SeedUserSession(t, f.db, who.UserID)
	_, err = f.svc.Regenerate(f.dbc, who, empty.ID, "")
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}

func TestUpdateMessageAndTitle(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{UserID: uuid.New()}
	s := testutil.SeedUserSession(t, f.db, who.UserID)
	seeded := testutil.SeedMessages(t, f.db, s, types.RoleUser)

	msg, err := f.svc.UpdateMessage(f.dbc, who, seeded[0].ID, "  fixed typo ")
	require.NoError(t, err)
	require.Equal(t, "fixed typo", msg.Content)

	_, err = f.svc.UpdateMessage(f.dbc, ctxutil.Identity{UserID: uuid.New()}, seeded[0].ID, "x")
	require.ErrorIs(t, err, pkgerrors.ErrPermissionDenied)
	_, err = f.svc.UpdateMessage(f.dbc, who, uuid.New(), "x")
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)

	renamed, err := f.svc.UpdateSessionTitle(f.dbc, who, s.ID, "Trip planning")
	require.NoError(t, err)
	require.Equal(t, "Trip planning", renamed.Title)
	_, err = f.svc.UpdateSessionTitle(f.dbc, who, s.ID, " ")
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
	require.Equal(t, 1, f.emit.count(realtime.SSEEventChatSessionUpdated))
}

func TestDeleteSession(t *testing.T) {
	f := newChatFixture(t)
	who := ctxutil.Identity{UserID: uuid.New()}
	s := testutil.SeedUserSession(t, f.db, who.UserID)
	testutil.SeedMessages(t, f.db, s, types.RoleUser, types.RoleAssistant)

	require.ErrorIs(t, f.svc.DeleteSession(f.dbc, ctxutil.Identity{UserID: uuid.New()}, s.ID), pkgerrors.ErrPermissionDenied)
	require.NoError(t, f.svc.DeleteSession(f.dbc, who, s.ID))

	var n int64
	require.NoError(t, f.db.Model(&types.ChatMessage{}).Where("session_id = ?", s.ID).Count(&n).Error)
	require.Zero(t, n)
	_, err := f.svc.GetSession(f.dbc, who, s.ID)
	require.ErrorIs(t, err, pkgerrors.ErrNotFound)
	require.Equal(t, 1, f.emit.count(realtime.SSEEventChatSessionDeleted))
}

func TestMigrateOwnership(t *testing.T) {
	f := newChatFixture(t)
	anon := ctxutil.Identity{AnonymousID: uuid.NewString()}
	userID := uuid.New()

	first, err := f.svc.SendMessage(f.dbc, anon, SendInput{Content: "hello"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(f.dbc, anon, SendInput{SessionID: &first.SessionID, Content: "again"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(f.dbc, anon, SendInput{Content: "second chat"})
	require.NoError(t, err)

	n, err := f.svc.MigrateOwnership(f.dbc, anon.AnonymousID, userID)
	require.NoError(t, err)
	require.EqualValues(t, 2+6, n)

	again, err := f.svc.MigrateOwnership(f.dbc, anon.AnonymousID, userID)
	require.NoError(t, err)
	require.Zero(t, again)

	user := ctxutil.Identity{UserID: userID}
	sessions, err := f.svc.ListSessions(f.dbc, user)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	left, err := f.svc.ListSessions(f.dbc, anon)
	require.NoError(t, err)
	require.Empty(t, left)
	require.Len(t, f.roles(t, user, first.SessionID), 4)

	_, err = f.svc.MigrateOwnership(f.dbc, "", userID)
	require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
}
