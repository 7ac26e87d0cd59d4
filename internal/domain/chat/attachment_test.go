package chat

import (
	"errors"
	"testing"

	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
)

func TestAttachmentValidate(t *testing.T) {
	ok := []Attachment{
		{Type: AttachmentImage, Filename: "cat.png", MimeType: "image/png", Size: 1024},
		{Type: AttachmentPDF, Filename: "paper.pdf", MimeType: "application/pdf", Size: MaxAttachmentBytes},
	}
	for _, a := range ok {
		if err := a.Validate(); err != nil {
			t.Fatalf("%s: unexpected error: %v", a.Filename, err)
		}
	}

	bad := []Attachment{
		{Type: AttachmentImage, Filename: "x.pdf", MimeType: "application/pdf", Size: 1},
		{Type: AttachmentPDF, Filename: "x.docx", MimeType: "application/msword", Size: 1},
		{Type: AttachmentImage, Filename: "huge.png", MimeType: "image/png", Size: MaxAttachmentBytes + 1},
		{Type: "video", Filename: "clip.mp4", MimeType: "video/mp4", Size: 1},
		{Type: AttachmentImage, Filename: " ", MimeType: "image/png", Size: 1},
	}
	for _, a := range bad {
		err := a.Validate()
		if err == nil {
			t.Fatalf("%q: expected error", a.Filename)
		}
		if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("%q: expected ErrInvalidArgument, got %v", a.Filename, err)
		}
	}
}

func TestValidateAttachmentsLimit(t *testing.T) {
	many := make([]Attachment, MaxAttachmentsPerTurn+1)
	for i := range many {
		many[i] = Attachment{Type: AttachmentImage, Filename: "a.png", MimeType: "image/png", Size: 1}
	}
	if err := ValidateAttachments(many); err == nil {
		t.Fatalf("expected limit error")
	}
	if err := ValidateAttachments(many[:MaxAttachmentsPerTurn]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
