package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/kierachat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/pointers"
)

func ids(rows []*types.ChatMessage) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestDeleteFromSeqKeepsEarlierMessages(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	s := testutil.SeedUserSession(t, db, uuid.New())
	msgs := testutil.SeedMessages(t, db, s, types.RoleUser, types.RoleAssistant, types.RoleUser, types.RoleAssistant)

	deleted, err := repo.DeleteFromSeq(dbc, s.ID, msgs[2].Seq)
	if err != nil {
		t.Fatalf("DeleteFromSeq: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted=%d want 2", deleted)
	}
	left, err := repo.ListBySession(dbc, s.ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	got := ids(left)
	if len(got) != 2 || got[0] != msgs[0].ID || got[1] != msgs[1].ID {
		t.Fatalf("remaining=%v want [%s %s]", got, msgs[0].ID, msgs[1].ID)
	}
}

func TestDeleteLastAssistantRemovesOnlyTrailingAssistant(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	s := testutil.SeedUserSession(t, db, uuid.New())
	msgs := testutil.SeedMessages(t, db, s, types.RoleUser, types.RoleAssistant, types.RoleUser, types.RoleAssistant)

	removed, err := repo.DeleteLastAssistant(dbc, s.ID)
	if err != nil {
		t.Fatalf("DeleteLastAssistant: %v", err)
	}
	if removed == nil || removed.ID != msgs[3].ID {
		t.Fatalf("removed=%v want %s", removed, msgs[3].ID)
	}
	left, _ := repo.ListBySession(dbc, s.ID)
	if len(left) != 3 || left[2].ID != msgs[2].ID {
		t.Fatalf("unexpected remaining: %v", ids(left))
	}

	empty := testutil.SeedUserSession(t, db, uuid.New())
	testutil.SeedMessages(t, db, empty, types.RoleUser)
	removed, err = repo.DeleteLastAssistant(dbc, empty.ID)
	if err != nil || removed != nil {
		t.Fatalf("expected no-op, got removed=%v err=%v", removed, err)
	}
}

func TestPatchAssistantOnlyTouchesSuppliedFields(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	s := testutil.SeedUserSession(t, db, uuid.New())
	msgs := testutil.SeedMessages(t, db, s, types.RoleUser, types.RoleAssistant)
	placeholder := msgs[1]
	if err := repo.UpdateFields(dbc, placeholder.ID, map[string]interface{}{
		"content":       "",
		"thinking":      "draft",
		"is_generating": true,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	before, _ := repo.GetByID(dbc, placeholder.ID)

	time.Sleep(5 * time.Millisecond)
	if err := repo.PatchAssistant(dbc, placeholder.ID, AssistantPatch{Content: pointers.String("Hel")}); err != nil {
		t.Fatalf("PatchAssistant: %v", err)
	}
	got, _ := repo.GetByID(dbc, placeholder.ID)
	if got.Content != "Hel" {
		t.Fatalf("content=%q", got.Content)
	}
	if got.Thinking == nil || *got.Thinking != "draft" {
		t.Fatalf("thinking overwritten: %v", got.Thinking)
	}
	if !got.IsGenerating {
		t.Fatalf("is_generating flipped without being supplied")
	}
	if !got.Timestamp.After(before.Timestamp) {
		t.Fatalf("timestamp not refreshed: before=%v after=%v", before.Timestamp, got.Timestamp)
	}

	if err := repo.PatchAssistant(dbc, placeholder.ID, AssistantPatch{IsGenerating: pointers.Bool(false)}); err != nil {
		t.Fatalf("PatchAssistant: %v", err)
	}
	got, _ = repo.GetByID(dbc, placeholder.ID)
	if got.IsGenerating || got.Content != "Hel" {
		t.Fatalf("unexpected final row: %+v", got)
	}

	err := repo.PatchAssistant(dbc, uuid.New(), AssistantPatch{Content: pointers.String("x")})
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentForContextExcludesPlaceholder(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	s := testutil.SeedUserSession(t, db, uuid.New())
	roles := make([]string, 0, 14)
	for i := 0; i < 7; i++ {
		roles = append(roles, types.RoleUser, types.RoleAssistant)
	}
	msgs := testutil.SeedMessages(t, db, s, roles...)
	placeholder := msgs[len(msgs)-1]

	got, err := repo.ListRecentForContext(dbc, s.ID, placeholder.ID, 10)
	if err != nil {
		t.Fatalf("ListRecentForContext: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("len=%d want 10", len(got))
	}
	if got[0].ID != msgs[3].ID || got[9].ID != msgs[12].ID {
		t.Fatalf("window=[%s..%s] want [%s..%s]", got[0].ID, got[9].ID, msgs[3].ID, msgs[12].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Fatalf("not ascending at %d", i)
		}
	}
}

func TestMessageMigrateOwnershipIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	anon := uuid.NewString()
	s := testutil.SeedAnonymousSession(t, db, anon)
	testutil.SeedMessages(t, db, s, types.RoleUser, types.RoleAssistant)

	userID := uuid.New()
	n, err := repo.MigrateOwnership(dbc, anon, userID)
	if err != nil || n != 2 {
		t.Fatalf("first migrate: n=%d err=%v", n, err)
	}
	n, err = repo.MigrateOwnership(dbc, anon, userID)
	if err != nil || n != 0 {
		t.Fatalf("second migrate: n=%d err=%v", n, err)
	}
	rows, _ := repo.ListBySession(dbc, s.ID)
	for _, m := range rows {
		if m.UserID == nil || *m.UserID != userID || m.AnonymousToken != nil {
			t.Fatalf("message not migrated: %+v", m)
		}
	}
}

func TestListStaleGenerating(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewChatMessageRepo(db, testutil.Logger(t))

	s := testutil.SeedUserSession(t, db, uuid.New())
	msgs := testutil.SeedMessages(t, db, s, types.RoleUser, types.RoleAssistant, types.RoleUser, types.RoleAssistant)
	old := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&types.ChatMessage{}).Where("id = ?", msgs[1].ID).
		UpdateColumns(map[string]interface{}{"is_generating": true, "updated_at": old}).Error; err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	if err := db.Model(&types.ChatMessage{}).Where("id = ?", msgs[3].ID).
		UpdateColumns(map[string]interface{}{"is_generating": true}).Error; err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	stale, err := repo.ListStaleGenerating(dbc, time.Now().UTC().Add(-5*time.Minute), 50)
	if err != nil {
		t.Fatalf("ListStaleGenerating: %v", err)
	}
	found := map[uuid.UUID]bool{}
	for _, m := range stale {
		found[m.ID] = true
	}
	if !found[msgs[1].ID] || found[msgs[3].ID] {
		t.Fatalf("unexpected stale set: %v", ids(stale))
	}
}
