package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type ChatSessionRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatSession) ([]*types.ChatSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error)
	ListByOwner(dbc dbctx.Context, owner ctxutil.Identity, limit int) ([]*types.ChatSession, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error)
	// ReserveSeq bumps next_seq by n and returns the first reserved value.
	ReserveSeq(dbc dbctx.Context, id uuid.UUID, n int64) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Touch(dbc dbctx.Context, id uuid.UUID) error
	MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) error
	DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type chatSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatSessionRepo(db *gorm.DB, log *logger.Logger) ChatSessionRepo {
	return &chatSessionRepo{db: db, log: log.With("repo", "ChatSessionRepo")}
}

func (r *chatSessionRepo) Create(dbc dbctx.Context, rows []*types.ChatSession) ([]*types.ChatSession, error) {
	if len(rows) == 0 {
		return []*types.ChatSession{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	for _, row := range rows {
		if row != nil && row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chatSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("session: %w", pkgerrors.ErrNotFound)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var row types.ChatSession
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *chatSessionRepo) ListByOwner(dbc dbctx.Context, owner ctxutil.Identity, limit int) ([]*types.ChatSession, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	out := []*types.ChatSession{}
	q := txx.WithContext(dbc.Ctx).Model(&types.ChatSession{})
	switch {
	case owner.Authenticated():
		q = q.Where("user_id = ?", owner.UserID)
	case owner.Anonymous():
		q = q.Where("user_id IS NULL AND anonymous_token = ?", owner.AnonymousID)
	default:
		return out, nil
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatSessionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatSession, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.ChatSession
	err := q.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *chatSessionRepo) ReserveSeq(dbc dbctx.Context, id uuid.UUID, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve seq: n must be positive")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatSession{}).
		Where("id = ?", id).
		UpdateColumn("next_seq", gorm.Expr("next_seq + ?", n))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	var next int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ChatSession{}).
		Where("id = ?", id).
		Select("next_seq").
		Scan(&next).Error; err != nil {
		return 0, err
	}
	return next - n + 1, nil
}

func (r *chatSessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
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
		Model(&types.ChatSession{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *chatSessionRepo) Touch(dbc dbctx.Context, id uuid.UUID) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"updated_at": time.Now().UTC()})
}

func (r *chatSessionRepo) MigrateOwnership(dbc dbctx.Context, anonymousID string, userID uuid.UUID) (int64, error) {
	if anonymousID == "" || userID == uuid.Nil {
		return 0, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	// user_id and anonymous_token flip in one statement so a row never has both.
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatSession{}).
		Where("anonymous_token = ? AND user_id IS NULL", anonymousID).
		Updates(map[string]interface{}{
			"user_id":         userID,
			"anonymous_token": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *chatSessionRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.ChatSession{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *chatSessionRepo) DeleteByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("user_id = ?", userID).Delete(&types.ChatSession{})
	return res.RowsAffected, res.Error
}
