package chat

import (
	"fmt"
	"strings"

	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
)

const (
	AttachmentImage = "image"
	AttachmentPDF   = "pdf"

	MaxAttachmentBytes    = 10 << 20
	MaxAttachmentsPerTurn = 10
)

type Attachment struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Base64    string `json:"base64,omitempty"`
	StorageID string `json:"storageId,omitempty"`
}

func (a Attachment) IsImage() bool {
	return a.Type == AttachmentImage && strings.HasPrefix(strings.ToLower(a.MimeType), "image/")
}

func (a Attachment) Validate() error {
	mime := strings.ToLower(strings.TrimSpace(a.MimeType))
	switch a.Type {
	case AttachmentImage:
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("attachment %q: image must have an image/* mime type: %w", a.Filename, pkgerrors.ErrInvalidArgument)
		}
	case AttachmentPDF:
		if mime != "application/pdf" {
			return fmt.Errorf("attachment %q: document must be application/pdf: %w", a.Filename, pkgerrors.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("attachment %q: unsupported type %q: %w", a.Filename, a.Type, pkgerrors.ErrInvalidArgument)
	}
	if a.Size < 0 || a.Size > MaxAttachmentBytes {
		return fmt.Errorf("attachment %q: size %d exceeds 10MB: %w", a.Filename, a.Size, pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(a.Filename) == "" {
		return fmt.Errorf("attachment: missing filename: %w", pkgerrors.ErrInvalidArgument)
	}
	return nil
}

func ValidateAttachments(in []Attachment) error {
	if len(in) > MaxAttachmentsPerTurn {
		return fmt.Errorf("too many attachments (%d): %w", len(in), pkgerrors.ErrInvalidArgument)
	}
	for _, a := range in {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}
