package steps

import (
	"strings"

	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
)

// buildContextMessages converts stored messages into upstream chat messages.
// Image payloads are inlined only for vision-capable models; everything else
// gets a textual attachment marker.
func buildContextMessages(history []*types.ChatMessage, vision bool) []openrouter.ChatMessage {
	out := make([]openrouter.ChatMessage, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		if m.Role != types.RoleUser || len(m.Attachments) == 0 {
			out = append(out, openrouter.ChatMessage{Role: m.Role, Content: m.Content})
			continue
		}
		if vision {
			parts := []openrouter.ContentPart{{Type: "text", Text: m.Content}}
			for _, att := range m.Attachments {
				if !att.IsImage() || att.Base64 == "" {
					continue
				}
				parts = append(parts, openrouter.ContentPart{
					Type:     "image_url",
					ImageURL: &openrouter.ImageURL{URL: dataURL(att.MimeType, att.Base64)},
				})
			}
			out = append(out, openrouter.ChatMessage{Role: m.Role, Content: parts})
			continue
		}
		var sb strings.Builder
		sb.WriteString(m.Content)
		for _, att := range m.Attachments {
			sb.WriteString("\n[Attached ")
			sb.WriteString(att.Type)
			sb.WriteString(": ")
			sb.WriteString(att.Filename)
			sb.WriteString("]")
		}
		out = append(out, openrouter.ChatMessage{Role: m.Role, Content: sb.String()})
	}
	return out
}

func dataURL(mime, b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + b64
}
