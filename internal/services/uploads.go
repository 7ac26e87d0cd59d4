package services

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/ctxutil"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/gcp"
)

const uploadPrefix = "uploads"

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type UploadRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type UploadTicket struct {
	*gcp.UploadTarget
	StorageID string `json:"storageId"`
}

type FileURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UploadService interface {
	CreateUpload(dbc dbctx.Context, who ctxutil.Identity, req UploadRequest) (*UploadTicket, error)
	// FileURL resolves a storage id issued to the same caller.
	FileURL(dbc dbctx.Context, who ctxutil.Identity, storageID string) (*FileURL, error)
}

type uploadService struct {
	log   *logger.Logger
	store gcp.ObjectStore
}

func NewUploadService(baseLog *logger.Logger, store gcp.ObjectStore) UploadService {
	return &uploadService{log: baseLog.With("service", "UploadService"), store: store}
}

// ownerSegment is the first path element under uploads/. Storage ids embed it
// so a caller can only resolve their own files.
func ownerSegment(who ctxutil.Identity) string {
	switch {
	case who.Authenticated():
		return "user-" + who.UserID.String()
	case who.Anonymous():
		return "anon-" + unsafeFilename.ReplaceAllString(who.AnonymousID, "_")
	default:
		return ""
	}
}

func attachmentType(mime string) string {
	if strings.HasPrefix(mime, "image/") {
		return types.AttachmentImage
	}
	return types.AttachmentPDF
}

func (s *uploadService) CreateUpload(dbc dbctx.Context, who ctxutil.Identity, req UploadRequest) (*UploadTicket, error) {
	owner := ownerSegment(who)
	if owner == "" {
		return nil, fmt.Errorf("upload requires an identity: %w", pkgerrors.ErrUnauthorized)
	}
	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	att := types.Attachment{
		Type:     attachmentType(mime),
		Filename: strings.TrimSpace(req.Filename),
		Size:     req.Size,
		MimeType: mime,
	}
	if err := att.Validate(); err != nil {
		return nil, err
	}

	name := unsafeFilename.ReplaceAllString(path.Base(att.Filename), "_")
	key := path.Join(uploadPrefix, owner, uuid.NewString(), name)
	target, err := s.store.UploadURL(ctxutil.Default(dbc.Ctx), key, mime)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Issued upload url", "owner", owner, "key", key, "size", req.Size)
	return &UploadTicket{UploadTarget: target, StorageID: key}, nil
}

func (s *uploadService) FileURL(dbc dbctx.Context, who ctxutil.Identity, storageID string) (*FileURL, error) {
	owner := ownerSegment(who)
	if owner == "" {
		return nil, fmt.Errorf("file url requires an identity: %w", pkgerrors.ErrUnauthorized)
	}
	key := path.Clean(strings.TrimLeft(strings.TrimSpace(storageID), "/"))
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 3 || parts[0] != uploadPrefix {
		return nil, fmt.Errorf("storage id %q: %w", storageID, pkgerrors.ErrNotFound)
	}
	if parts[1] != owner {
		return nil, fmt.Errorf("storage id %q: %w", storageID, pkgerrors.ErrPermissionDenied)
	}
	u, exp, err := s.store.ReadURL(ctxutil.Default(dbc.Ctx), key)
	if err != nil {
		return nil, err
	}
	return &FileURL{URL: u, ExpiresAt: exp}, nil
}
