package userctx

import (
	"context"

	"github.com/nkiryanov/contestgate/internal/models"
)

type ctxKey string

const principalKey ctxKey = "principal"

// Create a new context with the authenticated principal
func New(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Extract the principal from the context
// nil means the request was never authenticated
func FromContext(ctx context.Context) *models.Principal {
	p, ok := ctx.Value(principalKey).(models.Principal)
	if !ok {
		return nil
	}
	return &p
}
