package services

import (
	"fmt"
	"strings"
	"time"

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

var (
	validThemes    = map[string]bool{"light": true, "dark": true, "system": true}
	validFontSizes = map[string]bool{"small": true, "medium": true, "large": true}
)

type DeleteReport struct {
	Sessions int64 `json:"sessions"`
	Messages int64 `json:"messages"`
	Settings int64 `json:"settings"`
}

type ExportedSession struct {
	*types.ChatSession
	Messages []*types.ChatMessage `json:"messages"`
}

type UserExport struct {
	UserID     uuid.UUID          `json:"userId"`
	ExportedAt time.Time          `json:"exportedAt"`
	Settings   types.Preferences  `json:"settings"`
	Sessions   []*ExportedSession `json:"sessions"`
}

type SettingsService interface {
	// Get returns the stored preferences, or the defaults when none were saved.
	Get(dbc dbctx.Context, who ctxutil.Identity) (types.Preferences, error)
	Save(dbc dbctx.Context, who ctxutil.Identity, prefs types.Preferences) (types.Preferences, error)
	DeleteAllData(dbc dbctx.Context, who ctxutil.Identity) (*DeleteReport, error)
	Export(dbc dbctx.Context, who ctxutil.Identity) (*UserExport, error)
}

type settingsService struct {
	db       *gorm.DB
	log      *logger.Logger
	models   *models.Registry
	settings repos.UserSettingsRepo
	sessions repos.ChatSessionRepo
	messages repos.ChatMessageRepo
}

func NewSettingsService(
	db *gorm.DB,
	baseLog *logger.Logger,
	registry *models.Registry,
	settingsRepo repos.UserSettingsRepo,
	sessionRepo repos.ChatSessionRepo,
	messageRepo repos.ChatMessageRepo,
) SettingsService {
	return &settingsService{
		db:       db,
		log:      baseLog.With("service", "SettingsService"),
		models:   registry,
		settings: settingsRepo,
		sessions: sessionRepo,
		messages: messageRepo,
	}
}

func requireUser(who ctxutil.Identity) error {
	if !who.Authenticated() {
		return fmt.Errorf("settings require a signed-in user: %w", pkgerrors.ErrUnauthorized)
	}
	return nil
}

func (s *settingsService) defaults() types.Preferences {
	return types.DefaultPreferences(s.models.DefaultModel().ID)
}

func (s *settingsService) Get(dbc dbctx.Context, who ctxutil.Identity) (types.Preferences, error) {
	if err := requireUser(who); err != nil {
		return types.Preferences{}, err
	}
	row, err := s.settings.GetByUserID(dbc, who.UserID)
	if err != nil {
		return types.Preferences{}, err
	}
	if row == nil {
		return s.defaults(), nil
	}
	return row.Settings.Data(), nil
}

// normalize fills zero values from the defaults and rejects values the client
// could not have offered.
func (s *settingsService) normalize(in types.Preferences) (types.Preferences, error) {
	def := s.defaults()
	out := in
	out.Theme = strings.ToLower(strings.TrimSpace(out.Theme))
	out.FontSize = strings.ToLower(strings.TrimSpace(out.FontSize))
	out.DefaultModel = strings.TrimSpace(out.DefaultModel)
	out.Language = strings.TrimSpace(out.Language)

	if out.DefaultModel == "" {
		out.DefaultModel = def.DefaultModel
	}
	if _, ok := s.models.Lookup(out.DefaultModel); !ok {
		return types.Preferences{}, fmt.Errorf("unknown model %q: %w", out.DefaultModel, pkgerrors.ErrInvalidArgument)
	}
	if out.Theme == "" {
		out.Theme = def.Theme
	}
	if !validThemes[out.Theme] {
		return types.Preferences{}, fmt.Errorf("invalid theme %q: %w", out.Theme, pkgerrors.ErrInvalidArgument)
	}
	if out.FontSize == "" {
		out.FontSize = def.FontSize
	}
	if !validFontSizes[out.FontSize] {
		return types.Preferences{}, fmt.Errorf("invalid font size %q: %w", out.FontSize, pkgerrors.ErrInvalidArgument)
	}
	if out.Language == "" {
		out.Language = def.Language
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = def.MaxTokens
	}
	if out.MaxTokens < 1 || out.MaxTokens > 32000 {
		return types.Preferences{}, fmt.Errorf("maxTokens %d out of range: %w", out.MaxTokens, pkgerrors.ErrInvalidArgument)
	}
	if out.Temperature < 0 || out.Temperature > 2 {
		return types.Preferences{}, fmt.Errorf("temperature %v out of range: %w", out.Temperature, pkgerrors.ErrInvalidArgument)
	}
	return out, nil
}

func (s *settingsService) Save(dbc dbctx.Context, who ctxutil.Identity, prefs types.Preferences) (types.Preferences, error) {
	if err := requireUser(who); err != nil {
		return types.Preferences{}, err
	}
	clean, err := s.normalize(prefs)
	if err != nil {
		return types.Preferences{}, err
	}
	row, err := s.settings.Upsert(dbc, who.UserID, clean)
	if err != nil {
		return types.Preferences{}, err
	}
	return row.Settings.Data(), nil
}

func (s *settingsService) DeleteAllData(dbc dbctx.Context, who ctxutil.Identity) (*DeleteReport, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	report := &DeleteReport{}
	err := s.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		var err error
		if report.Messages, err = s.messages.DeleteByUser(inner, who.UserID); err != nil {
			return err
		}
		if report.Sessions, err = s.sessions.DeleteByUser(inner, who.UserID); err != nil {
			return err
		}
		if report.Settings, err = s.settings.DeleteByUserID(inner, who.UserID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Deleted all user data",
		"user_id", who.UserID,
		"sessions", report.Sessions,
		"messages", report.Messages,
	)
	return report, nil
}

func (s *settingsService) Export(dbc dbctx.Context, who ctxutil.Identity) (*UserExport, error) {
	prefs, err := s.Get(dbc, who)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByOwner(dbc, who, 0)
	if err != nil {
		return nil, err
	}
	out := &UserExport{
		UserID:     who.UserID,
		ExportedAt: time.Now().UTC(),
		Settings:   prefs,
		Sessions:   make([]*ExportedSession, 0, len(sessions)),
	}
	for _, sess := range sessions {
		msgs, err := s.messages.ListBySession(dbc, sess.ID)
		if err != nil {
			return nil, err
		}
		out.Sessions = append(out.Sessions, &ExportedSession{ChatSession: sess, Messages: msgs})
	}
	return out, nil
}
