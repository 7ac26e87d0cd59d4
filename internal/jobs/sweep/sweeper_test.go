package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	"github.com/yungbote/kierachat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type sweepFixture struct {
	db      *gorm.DB
	sweeper *Sweeper
	jobRuns repos.JobRunRepo
	msgs    repos.ChatMessageRepo
	session *types.ChatSession
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	sessions := repos.NewChatSessionRepo(db, log)
	msgs := repos.NewChatMessageRepo(db, log)
	jobRuns := repos.NewJobRunRepo(db, log)
	jobs := services.NewJobService(db, log, jobRuns)
	sw := NewSweeper(db, log, sessions, msgs, jobRuns, jobs, nil, Config{GenerationTimeout: 5 * time.Minute, MaxAttempts: 3})
	return &sweepFixture{
		db:      db,
		sweeper: sw,
		jobRuns: jobRuns,
		msgs:    msgs,
		session: testutil.SeedUserSession(t, db, uuid.New()),
	}
}

// placeholder seeds a generating assistant message last touched age ago.
func (f *sweepFixture) placeholder(t *testing.T, age time.Duration) *types.ChatMessage {
	t.Helper()
	m := testutil.SeedMessages(t, f.db, f.session, types.RoleUser, types.RoleAssistant)[1]
	require.NoError(t, f.db.Model(&types.ChatMessage{}).Where("id = ?", m.ID).UpdateColumns(map[string]interface{}{
		"content":       "partial",
		"is_generating": true,
		"model":         "google/gemini-2.0-flash-lite-001",
		"updated_at":    time.Now().UTC().Add(-age),
	}).Error)
	return m
}

func (f *sweepFixture) job(t *testing.T, msg *types.ChatMessage, status string, attempts int) {
	t.Helper()
	id := msg.ID
	_, err := f.jobRuns.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{{
		OwnerKey:   "user:x",
		JobType:    services.JobTypeChatRespond,
		EntityType: services.EntityChatMessage,
		EntityID:   &id,
		Status:     status,
		Stage:      status,
		Attempts:   attempts,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}})
	require.NoError(t, err)
}

func (f *sweepFixture) reload(t *testing.T, id uuid.UUID) *types.ChatMessage {
	t.Helper()
	m, err := f.msgs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	require.NoError(t, err)
	return m
}

func TestSweepRequeuesOrphanedPlaceholder(t *testing.T) {
	f := newSweepFixture(t)
	m := f.placeholder(t, 10*time.Minute)

	rep, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Requeued)

	got := f.reload(t, m.ID)
	require.True(t, got.IsGenerating)
	require.Empty(t, got.Content)

	job, err := f.jobRuns.GetLatestByEntity(dbctx.Context{Ctx: context.Background()}, services.EntityChatMessage, m.ID, services.JobTypeChatRespond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, types.JobStatusQueued, job.Status)
	require.Equal(t, "user:"+f.session.UserID.String(), job.OwnerKey)
	require.True(t, requeuedBefore(job))

	// the freshly reset placeholder is no longer stale
	rep, err = f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rep.Scanned)
}

func TestSweepForceFailsExhaustedPlaceholder(t *testing.T) {
	f := newSweepFixture(t)
	m := f.placeholder(t, 10*time.Minute)
	f.job(t, m, types.JobStatusFailed, 3)

	rep, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Failed)

	got := f.reload(t, m.ID)
	require.False(t, got.IsGenerating)
	require.Equal(t, chatmod.FailureMessage, got.Content)
}

func TestSweepLeavesLiveAndFreshWorkAlone(t *testing.T) {
	f := newSweepFixture(t)
	live := f.placeholder(t, 10*time.Minute)
	f.job(t, live, types.JobStatusRunning, 1)
	retrying := f.placeholder(t, 10*time.Minute)
	f.job(t, retrying, types.JobStatusFailed, 1)
	fresh := f.placeholder(t, time.Minute)

	rep, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, rep.Scanned)
	require.Equal(t, 2, rep.Skipped)
	for _, m := range []*types.ChatMessage{live, retrying, fresh} {
		got := f.reload(t, m.ID)
		require.True(t, got.IsGenerating)
		require.Equal(t, "partial", got.Content)
	}
}

func TestSweepDoesNotRequeueTwice(t *testing.T) {
	f := newSweepFixture(t)
	m := f.placeholder(t, 10*time.Minute)
	id := m.ID
	_, err := f.jobRuns.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{{
		OwnerKey:   "user:x",
		JobType:    services.JobTypeChatRespond,
		EntityType: services.EntityChatMessage,
		EntityID:   &id,
		Status:     types.JobStatusSucceeded,
		Stage:      "done",
		Payload:    []byte(`{"requeued_by":"sweep"}`),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}})
	require.NoError(t, err)

	rep, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.Failed)
	require.False(t, f.reload(t, m.ID).IsGenerating)
}
