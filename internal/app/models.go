package app

import (
	"log/slog"

	"github.com/fairyhunter13/videoforge/internal/config"
	"github.com/fairyhunter13/videoforge/internal/videomodel"
	"github.com/fairyhunter13/videoforge/internal/videomodel/mock"
	"github.com/fairyhunter13/videoforge/internal/videomodel/runway"
)

// BuildModelRegistry wires the known adapter constructors under the names the
// models config declares. Unknown names in the config are skipped with a
// warning so a typo cannot take the worker down.
func BuildModelRegistry(cfg config.Config, mc config.ModelsConfig) *videomodel.Registry {
	reg := videomodel.NewRegistry()
	for _, entry := range mc.Models {
		switch entry.Name {
		case "mock":
			reg.Register(entry.Name, entry.EnvKey, func(videomodel.Credentials) (videomodel.Adapter, error) {
				return mock.New(mock.Config{
					Delay:      cfg.MockDelay,
					FailRate:   cfg.MockFailRate,
					FFmpegPath: cfg.FFmpegPath,
				}), nil
			})
		case "runway":
			reg.Register(entry.Name, entry.EnvKey, func(creds videomodel.Credentials) (videomodel.Adapter, error) {
				return runway.New(creds.APIKey), nil
			})
		default:
			slog.Warn("unknown model in config, skipping", slog.String("model", entry.Name))
		}
	}
	return reg
}
