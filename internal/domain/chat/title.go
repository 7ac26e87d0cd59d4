package chat

import "strings"

const (
	DefaultTitle    = "New Chat"
	titlePreviewLen = 27
)

// PreviewTitle is the placeholder title derived from a first message:
// trimmed, and cut to 27 runes plus "..." when longer.
func PreviewTitle(msg string) string {
	t := strings.TrimSpace(msg)
	if t == "" {
		return DefaultTitle
	}
	r := []rune(t)
	if len(r) > titlePreviewLen {
		return string(r[:titlePreviewLen]) + "..."
	}
	return t
}
