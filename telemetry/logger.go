package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/project-fusion/fusion-backend/config"
)

// NewLogger builds the process logger. level stays owned by the caller so
// it can be changed while the process runs. With bridge set, records are
// also forwarded to the global OpenTelemetry logger provider.
func NewLogger(w io.Writer, cfg config.Log, level *slog.LevelVar, serviceName string, bridge bool) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	if bridge {
		h = slogmulti.Fanout(h, slogmulti.Pipe(levelGate(level)).Handler(otelslog.NewHandler(serviceName)))
	}

	return slog.New(h).With("service", serviceName)
}

// levelGate holds the OpenTelemetry branch to the same runtime level as the
// local output.
func levelGate(level slog.Leveler) slogmulti.Middleware {
	return slogmulti.NewEnabledInlineMiddleware(func(ctx context.Context, l slog.Level, next func(context.Context, slog.Level) bool) bool {
		return l >= level.Level() && next(ctx, l)
	})
}
