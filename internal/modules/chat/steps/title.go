package steps

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/yungbote/kierachat-backend/internal/data/repos"
	types "github.com/yungbote/kierachat-backend/internal/domain"
	"github.com/yungbote/kierachat-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/kierachat-backend/internal/pkg/errors"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/services"
)

// TitleCompleter is the slice of *openai.Client the titler needs.
type TitleCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type TitleDeps struct {
	Log      *logger.Logger
	AI       TitleCompleter
	Sessions repos.ChatSessionRepo
	Notify   services.ChatNotifier
}

type TitleInput struct {
	SessionID    uuid.UUID
	FirstMessage string
}

type TitleOutput struct {
	Title    string `json:"title"`
	Fallback bool   `json:"fallback"`
}

var titleMarkup = regexp.MustCompile("[*_`#\\[\\]]")

// GenerateTitle names a session from its first message and writes the title once.
func GenerateTitle(ctx context.Context, deps TitleDeps, in TitleInput) (TitleOutput, error) {
	out := TitleOutput{}
	if deps.Log == nil || deps.Sessions == nil {
		return out, fmt.Errorf("chat title: missing deps")
	}
	if in.SessionID == uuid.Nil {
		return out, fmt.Errorf("chat title: missing session_id")
	}
	log := deps.Log.With("session_id", in.SessionID)

	title, err := completeTitle(ctx, deps.AI, in.FirstMessage)
	if err != nil {
		log.Warn("Title generation failed; using message preview", "error", err)
		title = types.PreviewTitle(in.FirstMessage)
		out.Fallback = true
	}
	out.Title = title

	dbc := dbctx.Context{Ctx: ctx}
	if err := deps.Sessions.UpdateFields(dbc, in.SessionID, map[string]interface{}{
		"title":      title,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			log.Info("Session deleted before title landed")
			return out, nil
		}
		return out, err
	}
	if deps.Notify != nil {
		if s, err := deps.Sessions.GetByID(dbc, in.SessionID); err == nil {
			deps.Notify.SessionUpdated(sessionOwner(s).OwnerKey(), s)
		}
	}
	return out, nil
}

func completeTitle(ctx context.Context, ai TitleCompleter, msg string) (string, error) {
	if ai == nil {
		return "", fmt.Errorf("title model not configured")
	}
	resp, err := ai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       TitleModel,
		MaxTokens:   TitleMaxTokens,
		Temperature: TitleTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titlePrompt(msg)},
		},
	})
	if err != nil {
		return "", err
	}
	raw := ""
	if len(resp.Choices) > 0 {
		raw = resp.Choices[0].Message.Content
	}
	return sanitizeTitle(raw), nil
}

// sanitizeTitle trims model output to a plain-text title of at most 30 runes.
func sanitizeTitle(raw string) string {
	t := strings.TrimSpace(titleMarkup.ReplaceAllString(strings.TrimSpace(raw), ""))
	if t == "" {
		return types.DefaultSessionTitle
	}
	r := []rune(t)
	if len(r) > TitleMaxLen {
		return string(r[:TitleMaxLen-3]) + "..."
	}
	return t
}
