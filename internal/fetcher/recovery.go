package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// recoverDNS runs after every retry failed to resolve the site. Steps run in a fixed
// order and the first HTTP response of any status wins:
//  1. connectivity probe against reference endpoints
//  2. alternate public resolver, request pinned to the resolved IP
//  3. system resolver, request pinned to the resolved IP
//  4. reduced headers without keep-alive
func (f *Fetcher) recoverDNS(ctx context.Context, u *url.URL, cause error, trace *Trace) (*Response, error) {
	logger := f.logger.With("url", u.String(), "host", u.Hostname())
	logger.Warn("dns resolution failed, starting recovery", "error", cause)

	if !f.probe(ctx) {
		logger.Error("no reference endpoint reachable")
		return nil, models.NewNetworkUnreachable(cause)
	}

	steps := []struct {
		strategy string
		run      func() (*Response, error)
	}{
		{StrategyAlternateDNS, func() (*Response, error) {
			return f.viaResolver(ctx, u, StrategyAlternateDNS, f.alternateLookup(), trace)
		}},
		{StrategyLocalDNS, func() (*Response, error) {
			return f.viaResolver(ctx, u, StrategyLocalDNS, f.localLookup(), trace)
		}},
		{StrategyReducedHeaders, func() (*Response, error) {
			return f.reducedHeaders(ctx, u, trace)
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, models.NewTimeout(err)
		}

		resp, err := step.run()
		if err == nil {
			logger.Info("dns recovery succeeded", "strategy", step.strategy, "status", resp.Status)
			return checkStatus(resp)
		}
		logger.Warn("dns recovery step failed", "strategy", step.strategy, "error", err)
	}

	return nil, models.NewConnectionFailed(cause)
}

func (f *Fetcher) probe(ctx context.Context) bool {
	if f.opts.Probe != nil {
		return f.opts.Probe(ctx)
	}

	dial := f.baseDial()
	for _, endpoint := range f.opts.ReferenceEndpoints {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.ProbeTimeout)
		conn, err := dial(probeCtx, "tcp", endpoint)
		cancel()
		if err == nil {
			conn.Close()
			return true
		}
		f.logger.Debug("reference endpoint unreachable", "endpoint", endpoint, "error", err)
	}
	return false
}

func (f *Fetcher) viaResolver(ctx context.Context, u *url.URL, strategy string, lookup LookupFunc, trace *Trace) (*Response, error) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.ConnectTimeout)
	addrs, err := lookup(lookupCtx, u.Hostname())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", u.Hostname(), err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses", u.Hostname())
	}

	var lastErr error
	for _, ip := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess, err := f.newSession(sessionConfig{
			profile: f.primary,
			pinned:  map[string]string{u.Hostname(): ip},
		})
		if err != nil {
			return nil, err
		}
		resp, err := f.do(ctx, sess, strategy, u.String(), trace)
		sess.Close()
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) reducedHeaders(ctx context.Context, u *url.URL, trace *Trace) (*Response, error) {
	sess, err := f.newSession(sessionConfig{
		profile:           f.primary.Reduced(),
		disableKeepAlives: true,
	})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return f.do(ctx, sess, StrategyReducedHeaders, u.String(), trace)
}

func (f *Fetcher) alternateLookup() LookupFunc {
	if f.opts.AlternateLookup != nil {
		return f.opts.AlternateLookup
	}

	server := f.opts.AlternateDNS
	dial := f.baseDial()
	resolver := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dial(ctx, network, server)
		},
	}
	return resolver.LookupHost
}

func (f *Fetcher) localLookup() LookupFunc {
	if f.opts.LocalLookup != nil {
		return f.opts.LocalLookup
	}
	return net.DefaultResolver.LookupHost
}
