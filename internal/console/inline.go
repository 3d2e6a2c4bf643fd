package console

import (
	"context"

	"go.uber.org/zap"
)

// InlineEditor applies a single-field change to one row and then reloads,
// whether or not the change succeeded. Failures only reach the log.
type InlineEditor[V any] struct {
	field  string
	apply  func(ctx context.Context, identity string, value V) error
	reload *ReloadController
	logger *zap.Logger
}

func NewInlineEditor[V any](field string, apply func(ctx context.Context, identity string, value V) error, reload *ReloadController, logger *zap.Logger) *InlineEditor[V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineEditor[V]{field: field, apply: apply, reload: reload, logger: logger}
}

// Change writes value for the row identified by identity.
func (e *InlineEditor[V]) Change(ctx context.Context, identity string, value V) {
	if err := e.apply(ctx, identity, value); err != nil {
		e.logger.Error("inline edit failed",
			zap.String("field", e.field),
			zap.String("identity", identity),
			zap.Error(err))
	}
	if e.reload != nil {
		e.reload.Bump()
	}
}
