package service

import (
	"context"
	"strings"
)

// IdentityProvider resolves the email of the user the local ledger belongs to
type IdentityProvider interface {
	CurrentEmail(ctx context.Context) (string, error)
}

// StaticIdentity is a fixed, configured identity
type StaticIdentity string

func (s StaticIdentity) CurrentEmail(ctx context.Context) (string, error) {
	email := strings.TrimSpace(string(s))
	if email == "" {
		return "", invalidArgument("no identity configured")
	}
	return email, nil
}

type identityKey struct{}

// WithIdentity returns a context carrying an authenticated email
func WithIdentity(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, identityKey{}, email)
}

// IdentityFromContext returns the email stored by WithIdentity
func IdentityFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(identityKey{}).(string)
	return email, ok && email != ""
}

// ContextIdentity prefers the email carried on the context and falls back to
// another provider when there is none.
type ContextIdentity struct {
	Fallback IdentityProvider
}

func (c ContextIdentity) CurrentEmail(ctx context.Context) (string, error) {
	if email, ok := IdentityFromContext(ctx); ok {
		return email, nil
	}
	if c.Fallback == nil {
		return "", invalidArgument("no identity on context")
	}
	return c.Fallback.CurrentEmail(ctx)
}
