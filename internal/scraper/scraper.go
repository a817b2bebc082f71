package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/amazon-label-extractor/internal/fetcher"
	"github.com/maltedev/amazon-label-extractor/internal/models"
)

var (
	ErrInvalidURL = errors.New("invalid product URL")
)

// Extractor turns a product URL into a record.
type Extractor interface {
	Extract(ctx context.Context, url string) (*models.ProductRecord, error)
}

// PageFetcher is the network side of an extraction.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, trace *fetcher.Trace) (*fetcher.Response, error)
	FetchWithProfile(ctx context.Context, url string, profile fetcher.Profile, trace *fetcher.Trace) (*fetcher.Response, error)
}
