package destination

import (
	"fmt"
	"log/slog"

	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
)

// Build constructs the configured destination set. Each selected kind is
// instantiated exactly once, wrapped in a Filter when any filter dimension is
// configured for it, and the whole set is composed into a single Destination.
// A kind that cannot be constructed (unknown name, missing credentials) fails
// construction outright; startup must fail loudly rather than silently drop
// notifications.
func Build(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (Destination, error) {
	if len(cfg.DestTypes) == 0 {
		return nil, fmt.Errorf("no destination kinds selected: %w", ErrMisconfigured)
	}

	destinations := make([]Destination, 0, len(cfg.DestTypes))
	for _, kind := range cfg.DestTypes {
		d, err := buildKind(kind, cfg, log)
		if err != nil {
			return nil, err
		}
		if dims, ok := cfg.Filters[kind]; ok {
			d = NewFilter(d, dims)
		}
		destinations = append(destinations, d)
	}

	// A single kind still goes through the composite so delivery metrics and
	// failure containment behave identically regardless of fan-out width.
	return NewComposite(log, m, destinations...), nil
}

func buildKind(kind string, cfg config.Config, log *slog.Logger) (Destination, error) {
	switch kind {
	case "slack":
		return NewSlack(cfg.Slack, log)
	case "email":
		return NewEmail(cfg.SMTP)
	default:
		return nil, fmt.Errorf("unknown destination kind %q: %w", kind, ErrMisconfigured)
	}
}
