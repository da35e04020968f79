package server

import (
	"context"
	"log/slog"

	"coursecast/internal/observability/logging"
)

// loggerWithRequestContext prefers the logger the request-id middleware stored
// in the context and falls back to annotating the supplied base logger.
func loggerWithRequestContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if ctxLogger := logging.LoggerFromContext(ctx); ctxLogger != nil {
		return ctxLogger
	}
	return logging.WithContext(ctx, base)
}
