package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/videoforge/internal/config"
)

// SetupLogger configures the process logger: JSON to stdout, debug level in
// dev, tagged with service and environment for log aggregation.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
