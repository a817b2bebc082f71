package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/maltedev/amazon-label-extractor/internal/ratelimit"
)

// DialFunc opens a raw connection, the signature of net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type sessionConfig struct {
	profile Profile
	// pinned maps a hostname to the IP its connections must go to.
	pinned            map[string]string
	disableKeepAlives bool
}

// Session is one client identity: its own cookie jar, transport and TLS fingerprint.
// Sessions belong to a single extraction and are never shared.
type Session struct {
	profile   Profile
	client    *http.Client
	transport *http.Transport
	pacer     *ratelimit.Pacer
	timeout   time.Duration
	maxBody   int64
	closeConn bool
}

func (f *Fetcher) newSession(cfg sessionConfig) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	dial := f.baseDial()
	if len(cfg.pinned) > 0 {
		dial = pinnedDialer(dial, cfg.pinned)
	}

	transport := &http.Transport{
		DialContext:           dial,
		TLSHandshakeTimeout:   f.opts.ConnectTimeout,
		ResponseHeaderTimeout: f.opts.ReadTimeout,
		DisableCompression:    true,
		DisableKeepAlives:     cfg.disableKeepAlives,
		ForceAttemptHTTP2:     false,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
	}

	if id, ok := clientHello(cfg.profile.TLS); ok {
		transport.DialTLSContext = fingerprintDialer(id, dial, f.opts.InsecureSkipVerify)
	} else {
		transport.TLSClientConfig = stdTLSConfig(f.opts.InsecureSkipVerify)
	}

	return &Session{
		profile:   cfg.profile,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		pacer:     ratelimit.NewPacer(f.opts.RequestsPerSecond),
		timeout:   f.opts.ConnectTimeout + f.opts.ReadTimeout,
		maxBody:   f.opts.MaxBodyBytes,
		closeConn: cfg.disableKeepAlives,
	}, nil
}

// Get issues one GET. The caller's cancellation is honoured while pacing, but
// once the request is on the wire only the session timeouts bound it.
func (s *Session) Get(ctx context.Context, target string) (*Response, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	s.profile.apply(req)
	if s.closeConn {
		req.Close = true
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp, s.maxBody)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Response{
		URL:     resp.Request.URL.String(),
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    body,
		Profile: s.profile.ID,
	}, nil
}

func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

// pinnedDialer sends connections for pinned hosts to a fixed IP. The URL, Host
// header and TLS server name keep the original hostname.
func pinnedDialer(dial DialFunc, pinned map[string]string) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err == nil {
			if ip, ok := pinned[host]; ok {
				addr = net.JoinHostPort(ip, port)
			}
		}
		return dial(ctx, network, addr)
	}
}
