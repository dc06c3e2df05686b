package lifeevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lifeline/pkg/platform/sentinel"
)

// Handler processes one classified, resolved life event.
type Handler interface {
	Handle(ctx context.Context, ev LifeEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev LifeEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev LifeEvent) error { return f(ctx, ev) }

// Dispatcher routes a life event to the handler registered for its category.
// Categories without a handler are a logged no-op, which keeps the pipeline
// forward-compatible with registry-side additions.
type Dispatcher struct {
	handlers map[Category]Handler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Category]Handler),
		logger:   logger,
	}
}

// Register adds a handler for a category. Last registration wins.
func (d *Dispatcher) Register(category Category, handler Handler) {
	d.handlers[category] = handler
}

// Dispatch invokes the matching handler synchronously. Handler failures are
// isolated: only transport-class errors (sentinel.ErrUnavailable) propagate,
// so the consumer withholds the offset and the record is redelivered;
// everything else is logged and swallowed so one bad record cannot stall a
// partition.
func (d *Dispatcher) Dispatch(ctx context.Context, ev LifeEvent) error {
	handler, ok := d.handlers[ev.Category]
	if !ok {
		d.logger.Info("no handler registered for category, skipping event",
			"category", ev.Category,
			"event_id", ev.SourceEventID,
		)
		return nil
	}

	if err := d.handle(ctx, handler, ev); err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		d.logger.Error("handler failed, event discarded",
			"category", ev.Category,
			"event_id", ev.SourceEventID,
			"subject", ev.Subject.Masked(),
			"error", err,
		)
	}
	return nil
}

// handle converts handler panics into errors so a single record cannot take
// down the poll loop.
func (d *Dispatcher) handle(ctx context.Context, handler Handler, ev LifeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, ev)
}
