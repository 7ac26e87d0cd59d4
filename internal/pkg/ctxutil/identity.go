package ctxutil

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Identity is the caller as resolved by the auth middleware. At most one of
// UserID and AnonymousID drives ownership; a signed-in user wins.
type Identity struct {
	UserID      uuid.UUID
	AnonymousID string
}

func (i Identity) Authenticated() bool { return i.UserID != uuid.Nil }

func (i Identity) Anonymous() bool {
	return i.UserID == uuid.Nil && strings.TrimSpace(i.AnonymousID) != ""
}

func (i Identity) Empty() bool { return !i.Authenticated() && !i.Anonymous() }

// OwnerKey is the stable string used for SSE channels and job ownership.
func (i Identity) OwnerKey() string {
	switch {
	case i.Authenticated():
		return "user:" + i.UserID.String()
	case i.Anonymous():
		return "anon:" + i.AnonymousID
	default:
		return ""
	}
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(Default(ctx), identityKey{}, id)
}

func GetIdentity(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}
