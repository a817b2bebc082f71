package scraper

import (
	"log/slog"

	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/fetcher"
	"github.com/maltedev/amazon-label-extractor/internal/parser"
)

// NewFromConfig wires a Service from configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	f := fetcher.New(
		fetcher.NewProfile(cfg.Fetcher.Primary),
		fetcher.OptionsFromConfig(cfg.Fetcher),
		logger,
	)
	detector := NewBlockDetector(cfg.Evasion.IndicatorPhrases)
	evasion := NewEvasionSelector(f, detector, fetcher.NewProfiles(cfg.Evasion.Profiles), logger)
	p := parser.NewAmazonParser(parser.Options{
		PriceMin:        cfg.Extractor.PriceMin,
		PriceMax:        cfg.Extractor.PriceMax,
		DefaultCurrency: cfg.Extractor.DefaultCurrency,
	})

	return NewService(NewSiteGate(cfg.Fetcher.SupportedHosts), f, detector, evasion, p, logger, opts...)
}
