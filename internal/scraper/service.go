package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-label-extractor/internal/diagnostics"
	"github.com/maltedev/amazon-label-extractor/internal/fetcher"
	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/parser"
)

// Report is a record with the trail that produced it.
type Report struct {
	RequestID  string                  `json:"request_id"`
	URL        string                  `json:"url"`
	Record     *models.ProductRecord   `json:"record"`
	Attempts   []models.FetchAttempt   `json:"attempts"`
	Candidates []models.FieldCandidate `json:"candidates"`
	Duration   time.Duration           `json:"duration"`
}

// extraction is the per-request state. Nothing in it outlives the call.
type extraction struct {
	id    string
	url   string
	trace fetcher.Trace
	start time.Time
}

// Service runs the gate, fetch, block check, evasion and parse stages in sequence.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	gate     *SiteGate
	fetcher  PageFetcher
	detector *BlockDetector
	evasion  *EvasionSelector
	parser   parser.Parser
	sink     diagnostics.Sink
	logger   *slog.Logger
}

type ServiceOption func(*Service)

// WithSink sends every page that reaches the parser to sink.
func WithSink(sink diagnostics.Sink) ServiceOption {
	return func(s *Service) {
		s.sink = sink
	}
}

func NewService(gate *SiteGate, f PageFetcher, detector *BlockDetector, evasion *EvasionSelector, p parser.Parser, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		gate:     gate,
		fetcher:  f,
		detector: detector,
		evasion:  evasion,
		parser:   p,
		sink:     diagnostics.Nop{},
		logger:   logger.With("component", "scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Extract(ctx context.Context, url string) (*models.ProductRecord, error) {
	report, err := s.ExtractReport(ctx, url)
	if err != nil {
		return nil, err
	}
	return report.Record, nil
}

// ExtractReport is Extract plus the attempts and winning candidates. On error the
// report is nil and err is a *models.ExtractError.
func (s *Service) ExtractReport(ctx context.Context, url string) (report *Report, err error) {
	ex := &extraction{id: uuid.NewString(), url: url, start: time.Now()}
	logger := s.logger.With("request_id", ex.id, "url", url)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("extraction panicked", "panic", r, "stack", string(debug.Stack()))
			report = nil
			err = models.NewInternalFault(fmt.Sprint(r), nil)
		}
	}()

	if err := s.gate.Check(url); err != nil {
		logger.Info("rejected unsupported site")
		return nil, err
	}

	resp, err := s.acquire(ctx, ex, logger)
	if err != nil {
		ee := models.AsExtractError(err)
		logger.Warn("extraction failed",
			"kind", ee.Kind,
			"attempts", len(ex.trace.Attempts),
			"error", ee)
		return nil, ee
	}

	if err := s.sink.Record(ctx, url, resp.Body); err != nil {
		logger.Debug("failed to record diagnostics", "error", err)
	}

	result, err := s.parser.Parse(resp.Text())
	if err != nil {
		return nil, models.NewInternalFault("failed to parse page", err)
	}

	logger.Info("extraction complete",
		"profile", resp.Profile,
		"strategy", resp.Strategy,
		"confidence", result.Record.Confidence,
		"images", len(result.Record.ImageURLs),
		"attempts", len(ex.trace.Attempts))

	return &Report{
		RequestID:  ex.id,
		URL:        url,
		Record:     result.Record,
		Attempts:   ex.trace.Attempts,
		Candidates: result.Candidates,
		Duration:   time.Since(ex.start),
	}, nil
}

// acquire returns an unblocked 200 page or an error.
func (s *Service) acquire(ctx context.Context, ex *extraction, logger *slog.Logger) (*fetcher.Response, error) {
	resp, err := s.fetcher.Fetch(ctx, ex.url, &ex.trace)
	if err != nil {
		return nil, err
	}

	phrase, blocked := s.detector.Match(resp.Body)
	if !blocked {
		return resp, nil
	}

	logger.Warn("primary profile blocked, trying alternates", "indicator", phrase)
	if err := ctx.Err(); err != nil {
		return nil, models.NewTimeout(err)
	}
	return s.evasion.AttemptAlternates(ctx, ex.url, &ex.trace)
}
