package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/athenaq/athenaq/internal/config"
)

type ctxKey struct{}

// NewLogger writes JSON records when LogJSON is set and timestamp-free text
// records otherwise.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Observability.LogLevel,
		AddSource: cfg.Observability.LogLevel <= slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
		return slog.New(handler).With(
			slog.String("service", cfg.Service.Name),
			slog.String("profile", string(cfg.Profile)),
			slog.String("backend", cfg.Query.Backend),
		)
	}
	opts.ReplaceAttr = func(groups []string, attr slog.Attr) slog.Attr {
		if len(groups) == 0 && attr.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return attr
	}
	handler = slog.NewTextHandler(writer, opts)
	return slog.New(handler)
}

// ContextWithRunID tags ctx with the id of one CLI invocation so every
// query it submits can be correlated in logs and history.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(ctxKey{}).(string)
	return runID
}

// LoggerFromContext adds the run id carried by ctx, if any.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if runID := RunIDFromContext(ctx); runID != "" {
		return logger.With(slog.String("run_id", runID))
	}
	return logger
}
