// Package requestid carries the per-request correlation id.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header the id is read from and echoed in.
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a fresh random id.
func New() string {
	return uuid.NewString()
}

// Resolve returns incoming when it is a usable id, otherwise a fresh one.
func Resolve(incoming string) string {
	if incoming == "" || len(incoming) > 128 {
		return New()
	}
	return incoming
}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
