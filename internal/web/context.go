package web

import (
	"context"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// withHTTPTrigger marks runs started from the API so their reports say so.
func withHTTPTrigger(ctx context.Context) context.Context {
	return core.ContextWithTrigger(ctx, core.TriggerHTTP)
}
