package cli

import (
	"io"
	"log/slog"

	"github.com/Paintersrp/hookall/internal/config"
)

func newLogger(w io.Writer, spec config.LoggingSpec) *slog.Logger {
	opts := &slog.HandlerOptions{Level: spec.SlogLevel()}
	if spec.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
