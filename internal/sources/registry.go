package sources

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/config"
)

// Build creates adapters for the enabled sources, in configuration order.
func Build(cfgs []config.SourceConfig, logger *slog.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfgs))
	for _, sc := range cfgs {
		if sc.Disabled {
			continue
		}
		switch sc.Kind {
		case config.KindHTTP:
			adapters = append(adapters, NewHTTPAdapter(sc.ID, sc.BaseURL, HTTPOptions{
				Timeout:           sc.Timeout,
				RequestsPerSecond: sc.RequestsPerSecond,
				MaxPages:          sc.MaxPages,
			}))
		case config.KindBrowser:
			adapters = append(adapters, NewBrowserAdapter(sc.ID, sc.Browser, logger))
		default:
			return nil, errors.Newf("source %q: unknown kind %q", sc.ID, sc.Kind)
		}
		logger.Info("source registered", "source", sc.ID, "kind", sc.Kind)
	}
	return adapters, nil
}
