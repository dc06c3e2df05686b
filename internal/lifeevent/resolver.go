package lifeevent

import (
	"context"
	"fmt"
	"log/slog"

	"lifeline/internal/registry"
	"lifeline/pkg/domain"
)

// Resolver maps a raw event-carried subject identifier to the canonical
// person identifier via the identifier service.
type Resolver struct {
	identities registry.IdentityClient
	logger     *slog.Logger
}

func NewResolver(identities registry.IdentityClient, logger *slog.Logger) *Resolver {
	return &Resolver{identities: identities, logger: logger}
}

// Resolve returns (id, true, nil) for a permanent identifier and
// (zero, false, nil) when the subject only resolves to an alternate or
// malformed identifier, which drops the event. A non-nil error is a transport
// failure; the caller must not commit the offset so the record is redelivered.
func (r *Resolver) Resolve(ctx context.Context, rawIdent string) (domain.PersonID, bool, error) {
	resolved, err := r.identities.Resolve(ctx, rawIdent)
	if err != nil {
		return "", false, fmt.Errorf("resolve subject identifier: %w", err)
	}

	if resolved.Kind != registry.IdentPermanent {
		r.logger.Info("dropping event for non-permanent identifier",
			"kind", resolved.Kind,
		)
		return "", false, nil
	}

	id, err := domain.ParsePersonID(resolved.Ident)
	if err != nil {
		r.logger.Warn("dropping event with malformed permanent identifier",
			"error", err,
		)
		return "", false, nil
	}
	return id, true, nil
}
