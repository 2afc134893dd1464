package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "sync_trigger"

// Trigger values recorded on run reports.
const (
	TriggerCLI      = "cli"
	TriggerHTTP     = "http"
	TriggerSchedule = "schedule"
)

// ContextWithTrigger records what started a run (cli, http, schedule).
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// TriggerFromContext returns the trigger stored by ContextWithTrigger.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		return v
	}
	return ""
}
