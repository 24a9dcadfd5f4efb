package auth

import "context"

// Identity is the authenticated caller.
type Identity struct {
	UID   string
	Email string
}

type ctxKey string

const identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// UserID returns the caller's uid, or "" outside an authenticated request.
func UserID(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.UID
	}
	return ""
}
