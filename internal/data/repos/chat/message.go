package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

// AssistantPatch is a partial update of a streaming assistant message.
// Nil fields are left untouched; the timestamp is always refreshed.
type AssistantPatch struct {
	Content      *string
	Thinking     *string
	IsGenerating *bool
}

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.ChatMessage, error)
	// ListRecentForContext returns the last limit messages by seq (ascending), skipping excludeID.
	ListRecentForContext(dbc dbctx.Context, sessionID uuid.UUID, excludeID uuid.UUID, limit int) ([]*types.ChatMessage, error)
	LatestByRole(dbc dbctx.Context, sessionID uuid.UUID, role string) (*types.ChatMessage, error)
	ListStaleGenerating(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.ChatMessage, error)
	PatchAssistant(dbc dbctx.Context, id uuid.UUID, patch AssistantPatch) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteFromSeq(dbc dbctx.Context, sessionID uuid.UUID, seq int64) (int64, error)
	DeleteLastAssistant(dbc dbctx.Context, sessionID uuid.UUID) (*types.ChatMessage, error)
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(rows) == 0 {
		return []*types.ChatMessage{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row == nil {
			continue
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.Timestamp.IsZero() {
			row.Timestamp = now
		}
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chatMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.ChatMessage
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *chatMessageRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.ChatMessage, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	out := []*types.ChatMessage{}
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) ListRecentForContext(dbc dbctx.Context, sessionID uuid.UUID, excludeID uuid.UUID, limit int) ([]*types.ChatMessage, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	var out []*types.ChatMessage
	q := txx.WithContext(dbc.Ctx).Where("session_id = ?", sessionID)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	// Reverse to ASC.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *chatMessageRepo) LatestByRole(dbc dbctx.Context, sessionID uuid.UUID, role string) (*types.ChatMessage, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.ChatMessage
	err := txx.WithContext(dbc.Ctx).
		Where("session_id = ? AND role = ?", sessionID, role).
		Order("seq DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *chatMessageRepo) ListStaleGenerating(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.ChatMessage, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	out := []*types.ChatMessage{}
	if err := txx.WithContext(dbc.Ctx).
		Where("is_generating = ? AND role = ? AND updated_at < ?", true, types.RoleAssistant, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) PatchAssistant(dbc dbctx.Context, id uuid.UUID, patch AssistantPatch) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"timestamp":  now,
		"updated_at": now,
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.Thinking != nil {
		updates["thinking"] = *patch.Thinking
	}
	if patch.IsGenerating != nil {
		updates["is_generating"] = *patch.IsGenerating
	}
	return r.UpdateFields(dbc, id, updates)
}

func (r *chatMessageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("message: %w", pkgerrors.ErrNotFound)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatMessage{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *chatMessageRepo) DeleteFromSeq(dbc dbctx.Context, sessionID uuid.UUID, seq int64) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("session_id = ? AND seq >= ?", sessionID, seq).
		Delete(&types.ChatMessage{})
	return res.RowsAffected, res.Error
}

func (r *chatMessageRepo) DeleteLastAssistant(dbc dbctx.Context, sessionID uuid.UUID) (*types.ChatMessage, error) {
	last, err := r.LatestByRole(dbc, sessionID, types.RoleAssistant)
	if err != nil || last == nil {
		return nil, err
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", last.ID).Delete(&types.ChatMessage{}).Error; err != nil {
		return nil, err
	}
	return last, nil
}

func (r *chatMessageRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("session_id = ?", sessionID).Delete(&types.ChatMessage{})
	return res.RowsAffected, res.Error
}

func (r *chatMessageRepo) DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("user_id = ?", userID).Delete(&types.ChatMessage{})
	return res.RowsAffected, res.Error
}

func (r *chatMessageRepo) MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error) {
	if anonymousID == "" || userID == uuid.Nil {
		return 0, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatMessage{}).
		Where("anonymous_token = ? AND user_id IS NULL", anonymousID).
		Updates(map[string]interface{}{
			"user_id":         userID,
			"anonymous_token": nil,
		})
	return res.RowsAffected, res.Error
}
