// Package requestcontext provides context accessors for record-scoped values.
//
// The pipeline has no interactive caller; "request" here means one consumed
// registry record or one reconciliation candidate. The consumer sets the
// correlation id and source event id when it picks a record up, and every
// component downstream (classifier, resolver, handlers, publisher) reads them
// from context instead of threading extra parameters or using a global logger.
//
// Usage in services (read values):
//
//	correlationID := requestcontext.CorrelationID(ctx)
package requestcontext

import "context"

// Context key types (unexported for encapsulation).
type (
	correlationIDKey struct{}
	sourceEventIDKey struct{}
)

// -----------------------------------------------------------------------------
// Correlation
// -----------------------------------------------------------------------------

// CorrelationID retrieves the correlation id propagated from the originating
// registry event. Returns "" if not set.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCorrelationID injects a correlation id into the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// SourceEventID retrieves the registry's own event id for the record being
// processed. Returns "" if not set.
func SourceEventID(ctx context.Context) string {
	if v, ok := ctx.Value(sourceEventIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSourceEventID injects the registry event id into the context.
func WithSourceEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sourceEventIDKey{}, id)
}
