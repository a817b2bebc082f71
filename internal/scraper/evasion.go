package scraper

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/maltedev/amazon-label-extractor/internal/fetcher"
	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// EvasionSelector retries a blocked page with alternate client profiles, one
// fresh session each, strictly in the declared order.
type EvasionSelector struct {
	fetcher  PageFetcher
	detector *BlockDetector
	profiles []fetcher.Profile
	logger   *slog.Logger
}

func NewEvasionSelector(f PageFetcher, detector *BlockDetector, profiles []fetcher.Profile, logger *slog.Logger) *EvasionSelector {
	return &EvasionSelector{
		fetcher:  f,
		detector: detector,
		profiles: profiles,
		logger:   logger.With("component", "evasion"),
	}
}

// AttemptAlternates returns the first 200 response that is not a challenge page.
func (e *EvasionSelector) AttemptAlternates(ctx context.Context, url string, trace *fetcher.Trace) (*fetcher.Response, error) {
	for i, profile := range e.profiles {
		if err := ctx.Err(); err != nil {
			return nil, models.NewTimeout(err)
		}

		logger := e.logger.With("profile", profile.ID, "position", i+1, "url", url)

		resp, err := e.fetcher.FetchWithProfile(ctx, url, profile, trace)
		if err != nil {
			logger.Warn("alternate profile request failed", "error", err)
			continue
		}
		if resp.Status != http.StatusOK {
			logger.Warn("alternate profile got non-200", "status", resp.Status)
			continue
		}
		if phrase, blocked := e.detector.Match(resp.Body); blocked {
			logger.Warn("alternate profile blocked", "indicator", phrase)
			continue
		}

		logger.Info("alternate profile succeeded")
		return resp, nil
	}

	return nil, models.NewBotDetectionExhausted()
}
