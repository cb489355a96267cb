package acquire

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/amanullahtanweer/video-transcriber/internal/command"
	"github.com/amanullahtanweer/video-transcriber/internal/config"
	"github.com/amanullahtanweer/video-transcriber/internal/retry"
)

// BuildStrategies constructs the strategies named in order from cfg. client
// serves short API calls; media downloads go through media.
func BuildStrategies(order []string, cfg config.AcquireConfig, client, media *http.Client, runner command.Runner, logger *slog.Logger) ([]Strategy, error) {
	rc := retry.FromConfig(cfg.Retry)

	strategies := make([]Strategy, 0, len(order))
	for _, name := range order {
		id, err := ParseStrategyID(name)
		if err != nil {
			return nil, err
		}
		switch id {
		case StrategyExtractor:
			strategies = append(strategies, NewExtractorStrategy(cfg.Extractor.Path, cfg.Extractor.Format, cfg.Extractor.Retries, runner))
		case StrategyProxy:
			strategies = append(strategies, NewProxyStrategy(ProxyOptions{
				BaseURL:      cfg.Proxy.BaseURL,
				APIKey:       cfg.Proxy.APIKey,
				Format:       cfg.Proxy.Format,
				PollInterval: cfg.Proxy.PollInterval,
				MaxPolls:     cfg.Proxy.MaxPolls,
				MaxBytes:     cfg.Direct.MaxBytes,
				Retry:        rc,
			}, client, media, logger))
		case StrategyDirect:
			strategies = append(strategies, NewDirectStrategy(media, cfg.Direct.MaxBytes, rc, logger))
		default:
			return nil, fmt.Errorf("strategy %q has no constructor", id)
		}
	}
	return strategies, nil
}
