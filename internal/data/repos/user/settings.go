package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type UserSettingsRepo interface {
	// GetByUserID returns nil when the user has never saved settings.
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.UserSettings, error)
	Upsert(dbc dbctx.Context, userID uuid.UUID, prefs types.Preferences) (*types.UserSettings, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) (int64, error)
}

type userSettingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserSettingsRepo(db *gorm.DB, baseLog *logger.Logger) UserSettingsRepo {
	return &userSettingsRepo{db: db, log: baseLog.With("repo", "UserSettingsRepo")}
}

func (r *userSettingsRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.UserSettings, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UserSettings
	err := transaction.WithContext(dbc.Ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *userSettingsRepo) Upsert(dbc dbctx.Context, userID uuid.UUID, prefs types.Preferences) (*types.UserSettings, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	row := &types.UserSettings{
		ID:        uuid.New(),
		UserID:    userID,
		Settings:  datatypes.NewJSONType(prefs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"settings", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(dbc, userID)
}

func (r *userSettingsRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Where("user_id = ?", userID).Delete(&types.UserSettings{})
	return res.RowsAffected, res.Error
}
