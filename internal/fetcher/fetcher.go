package fetcher

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/maltedev/amazon-label-extractor/internal/config"
	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/ratelimit"
)

const (
	StrategyPrimary        = "primary"
	StrategyAlternateDNS   = "alternate-dns"
	StrategyLocalDNS       = "local-dns"
	StrategyReducedHeaders = "reduced-headers"
	StrategyEvasion        = "evasion"
)

// LookupFunc resolves a hostname to IP addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Response is a fetched page with its body decoded to UTF-8.
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	Profile  string
	Strategy string
}

func (r *Response) Text() string {
	return string(r.Body)
}

type Options struct {
	MaxAttempts        int
	Backoff            *ratelimit.Backoff
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	WarmUp             bool
	RequestsPerSecond  float64
	MaxBodyBytes       int64
	AlternateDNS       string
	ReferenceEndpoints []string
	ProbeTimeout       time.Duration
	InsecureSkipVerify bool

	// Overrides for the network primitives. Nil means the real network.
	Dial            DialFunc
	Probe           func(ctx context.Context) bool
	AlternateLookup LookupFunc
	LocalLookup     LookupFunc
}

func OptionsFromConfig(c config.FetcherConfig) Options {
	return Options{
		MaxAttempts:        c.MaxAttempts,
		Backoff:            ratelimit.NewBackoff(c.BackoffBase, c.BackoffMultiplier),
		ConnectTimeout:     c.ConnectTimeout,
		ReadTimeout:        c.ReadTimeout,
		WarmUp:             c.WarmUp,
		RequestsPerSecond:  c.RequestsPerSecond,
		MaxBodyBytes:       c.MaxBodyBytes,
		AlternateDNS:       c.AlternateDNS,
		ReferenceEndpoints: c.ReferenceEndpoints,
		ProbeTimeout:       c.ProbeTimeout,
	}
}

// Trace collects the network attempts of one extraction, in order.
type Trace struct {
	Attempts []models.FetchAttempt
}

func (t *Trace) add(a models.FetchAttempt) {
	if t != nil {
		t.Attempts = append(t.Attempts, a)
	}
}

// Strategies returns the strategy of each attempt, in order.
func (t *Trace) Strategies() []string {
	out := make([]string, 0, len(t.Attempts))
	for _, a := range t.Attempts {
		out = append(out, a.Strategy)
	}
	return out
}

// Fetcher retrieves product pages. It holds configuration only; every call builds
// fresh sessions, so one Fetcher serves concurrent extractions.
type Fetcher struct {
	primary Profile
	opts    Options
	logger  *slog.Logger
}

func New(primary Profile, opts Options, logger *slog.Logger) *Fetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff == nil {
		opts.Backoff = ratelimit.NewBackoff(2*time.Second, 2)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.AlternateDNS == "" {
		opts.AlternateDNS = "8.8.8.8:53"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		primary: primary,
		opts:    opts,
		logger:  logger.With("component", "fetcher"),
	}
}

// Fetch downloads target with the primary profile. It retries connection failures
// with backoff, runs DNS recovery when resolution keeps failing and returns a
// response only for status 200. All errors are *models.ExtractError.
func (f *Fetcher) Fetch(ctx context.Context, target string, trace *Trace) (*Response, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, models.NewInternalFault("invalid url", err)
	}

	sess, err := f.newSession(sessionConfig{profile: f.primary})
	if err != nil {
		return nil, models.NewInternalFault("session setup", err)
	}
	defer sess.Close()

	if f.opts.WarmUp {
		f.warmUp(ctx, sess, u)
	}

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, models.NewTimeout(err)
		}

		resp, err := f.do(ctx, sess, StrategyPrimary, u.String(), trace)
		if err == nil {
			return checkStatus(resp)
		}
		if ctx.Err() != nil {
			return nil, models.NewTimeout(ctx.Err())
		}

		lastErr = err
		f.logger.Warn("fetch attempt failed",
			"url", target,
			"attempt", attempt,
			"max_attempts", f.opts.MaxAttempts,
			"failure", classify(err).String(),
			"error", err)

		if !isConnectionLevel(err) {
			break
		}

		if attempt < f.opts.MaxAttempts {
			if err := f.opts.Backoff.Wait(ctx, attempt); err != nil {
				return nil, models.NewTimeout(err)
			}
		}
	}

	switch classify(lastErr) {
	case failureDNS:
		return f.recoverDNS(ctx, u, lastErr, trace)
	case failureTimeout:
		return nil, models.NewTimeout(lastErr)
	default:
		return nil, models.NewConnectionFailed(lastErr)
	}
}

// FetchWithProfile makes a single request in a fresh session for profile. The
// response is returned whatever its status.
func (f *Fetcher) FetchWithProfile(ctx context.Context, target string, profile Profile, trace *Trace) (*Response, error) {
	sess, err := f.newSession(sessionConfig{profile: profile})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return f.do(ctx, sess, StrategyEvasion, target, trace)
}

func (f *Fetcher) do(ctx context.Context, sess *Session, strategy, target string, trace *Trace) (*Response, error) {
	start := time.Now()
	resp, err := sess.Get(ctx, target)

	attempt := models.FetchAttempt{
		Strategy: strategy,
		Profile:  sess.profile.ID,
		URL:      target,
		Duration: time.Since(start),
	}
	if err != nil {
		attempt.Error = err.Error()
	} else {
		attempt.Status = resp.Status
		resp.Strategy = strategy
	}
	trace.add(attempt)

	return resp, err
}

// warmUp visits the site root so the session picks up cookies. Failures are ignored.
func (f *Fetcher) warmUp(ctx context.Context, sess *Session, u *url.URL) {
	root := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	resp, err := sess.Get(ctx, root.String())
	if err != nil {
		f.logger.Debug("warm-up failed", "url", root.String(), "error", err)
		return
	}
	f.logger.Debug("warm-up complete", "url", root.String(), "status", resp.Status)
}

func (f *Fetcher) baseDial() DialFunc {
	if f.opts.Dial != nil {
		return f.opts.Dial
	}
	d := &net.Dialer{Timeout: f.opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	return d.DialContext
}

func checkStatus(resp *Response) (*Response, error) {
	if resp.Status != http.StatusOK {
		return nil, models.NewPageFetchFailed(resp.Status)
	}
	return resp, nil
}
