package services

import (
	"context"
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
)

func newTestSettings(t *testing.T) (SettingsService, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewSettingsService(db, log, models.Default(),
		repos.NewUserSettingsRepo(db, log),
		repos.NewChatSessionRepo(db, log),
		repos.NewChatMessageRepo(db, log),
	)
	return svc, db
}

func TestSettingsDefaultsAndUpsert(t *testing.T) {
	svc, _ := newTestSettings(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	who := ctxutil.Identity{UserID: uuid.New()}

	got, err := svc.Get(dbc, who)
	require.NoError(t, err)
	require.Equal(t, types.DefaultPreferences("google/gemini-2.0-flash-lite-001"), got)

	saved, err := svc.Save(dbc, who, types.Preferences{Theme: "Dark", FontSize: "large", DefaultModel: "openai/o4-mini"})
	require.NoError(t, err)
	require.Equal(t, "dark", saved.Theme)
	require.Equal(t, "large", saved.FontSize)
	require.Equal(t, 4000, saved.MaxTokens)
	require.Equal(t, "en", saved.Language)

	saved.ShowThinkingByDefault = true
	_, err = svc.Save(dbc, who, saved)
	require.NoError(t, err)

	got, err = svc.Get(dbc, who)
	require.NoError(t, err)
	require.True(t, got.ShowThinkingByDefault)
	require.Equal(t, "openai/o4-mini", got.DefaultModel)
}

func TestSettingsValidation(t *testing.T) {
	svc, _ := newTestSettings(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	who := ctxutil.Identity{UserID: uuid.New()}

	cases := []struct {
		name  string
		prefs types.Preferences
	}{
		{"theme", types.Preferences{Theme: "neon"}},
		{"font size", types.Preferences{FontSize: "huge"}},
		{"model", types.Preferences{DefaultModel: "acme/unknown"}},
		{"max tokens", types.Preferences{MaxTokens: -5}},
		{"temperature", types.Preferences{Temperature: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Save(dbc, who, tc.prefs)
			require.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
		})
	}

	_, err := svc.Get(dbc, ctxutil.Identity{AnonymousID: "abc"})
	require.ErrorIs(t, err, pkgerrors.ErrUnauthorized)
}

func TestSettingsExportAndDeleteAll(t *testing.T) {
	svc, db := newTestSettings(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	userID := uuid.New()
	who := ctxutil.Identity{UserID: userID}

	s1 := testutil.SeedUserSession(t, db, userID)
	testutil.SeedMessages(t, db, s1, types.RoleUser, types.RoleAssistant)
	s2 := testutil.SeedUserSession(t, db, userID)
	testutil.SeedMessages(t, db, s2, types.RoleUser)
	other := testutil.SeedUserSession(t, db, uuid.New())
	testutil.SeedMessages(t, db, other, types.RoleUser)
	_, err := svc.Save(dbc, who, types.Preferences{Theme: "light"})
	require.NoError(t, err)

	exp, err := svc.Export(dbc, who)
	require.NoError(t, err)
	require.Equal(t, userID, exp.UserID)
	require.Equal(t, "light", exp.Settings.Theme)
	require.Len(t, exp.Sessions, 2)
	total := 0
	for _, s := range exp.Sessions {
		total += len(s.Messages)
	}
	require.Equal(t, 3, total)

	report, err := svc.DeleteAllData(dbc, who)
	require.NoError(t, err)
	require.Equal(t, &DeleteReport{Sessions: 2, Messages: 3, Settings: 1}, report)

	got, err := svc.Get(dbc, who)
	require.NoError(t, err)
	require.Equal(t, "system", got.Theme)

	var left int64
	require.NoError(t, db.Model(&types.ChatMessage{}).Where("session_id = ?", other.ID).Count(&left).Error)
	require.EqualValues(t, 1, left)
}
