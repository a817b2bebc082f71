package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-label-extractor/internal/models"
	"github.com/maltedev/amazon-label-extractor/internal/ratelimit"
)

var testProfile = Profile{
	ID:        "test-desktop",
	UserAgent: "TestAgent/1.0",
	TLS:       "chrome",
	Headers: map[string]string{
		"Accept-Language": "en-IN",
		"Accept":          "text/html",
	},
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return ctx.Err()
}

func testOptions(rec *sleepRecorder) Options {
	backoff := ratelimit.NewBackoff(2*time.Second, 2)
	backoff.Sleep = rec.sleep
	return Options{
		MaxAttempts:    3,
		Backoff:        backoff,
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
		ProbeTimeout:   100 * time.Millisecond,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dnsError(host string) error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}}
}

// dnsFailingDial fails to resolve every hostname but connects to literal IPs.
func dnsFailingDial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, _ := net.SplitHostPort(addr)
	if net.ParseIP(host) == nil {
		return nil, dnsError(host)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// siteURL points a public-looking hostname at the test server's port.
func siteURL(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return "http://www.amazon.in:" + u.Port() + path
}

func TestFetch_Success(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		assert.Equal(t, "TestAgent/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "en-IN", r.Header.Get("Accept-Language"))

		if r.URL.Path == "/" {
			http.SetCookie(w, &http.Cookie{Name: "session-id", Value: "abc"})
			w.WriteHeader(http.StatusOK)
			return
		}

		cookie, err := r.Cookie("session-id")
		if assert.NoError(t, err) {
			assert.Equal(t, "abc", cookie.Value)
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`<html><span id="productTitle">Tea</span></html>`))
		gz.Close()
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	opts := testOptions(rec)
	opts.WarmUp = true
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	resp, err := f.Fetch(context.Background(), srv.URL+"/dp/B000TEST", trace)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Text(), "productTitle")
	assert.Equal(t, StrategyPrimary, resp.Strategy)
	assert.Equal(t, []string{"/", "/dp/B000TEST"}, paths)
	// the warm-up is not an attempt
	assert.Equal(t, []string{StrategyPrimary}, trace.Strategies())
	assert.Empty(t, rec.slept)
}

func TestFetch_WarmUpFailureIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := testOptions(&sleepRecorder{})
	opts.WarmUp = true
	f := New(testProfile, opts, testLogger())

	resp, err := f.Fetch(context.Background(), srv.URL+"/dp/X", &Trace{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
}

func TestFetch_NonOKStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"service unavailable", http.StatusServiceUnavailable},
		{"no content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			rec := &sleepRecorder{}
			f := New(testProfile, testOptions(rec), testLogger())
			trace := &Trace{}

			_, err := f.Fetch(context.Background(), srv.URL+"/dp/X", trace)
			require.Error(t, err)

			var ee *models.ExtractError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, models.KindPageFetchFailed, ee.Kind)
			assert.Equal(t, tt.status, ee.Status)
			assert.Len(t, trace.Attempts, 1)
			assert.Empty(t, rec.slept)
		})
	}
}

func TestFetch_RetriesWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
	}))
	defer srv.Close()

	var mu sync.Mutex
	failures := 2
	rec := &sleepRecorder{}
	opts := testOptions(rec)
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
		}
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	resp, err := f.Fetch(context.Background(), srv.URL+"/dp/X", trace)
	require.NoError(t, err)

	assert.Equal(t, "page", resp.Text())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.slept)
	require.Len(t, trace.Attempts, 3)
	assert.NotEmpty(t, trace.Attempts[0].Error)
	assert.Equal(t, http.StatusOK, trace.Attempts[2].Status)
}

func TestFetch_ConnectionFailed(t *testing.T) {
	rec := &sleepRecorder{}
	opts := testOptions(rec)
	opts.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	_, err := f.Fetch(context.Background(), "http://www.amazon.in/dp/X", trace)

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindConnectionFailed, ee.Kind)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Len(t, trace.Attempts, 3)
	// no sleep after the final attempt
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.slept)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	opts := testOptions(&sleepRecorder{})
	opts.MaxAttempts = 1
	opts.ReadTimeout = 50 * time.Millisecond
	f := New(testProfile, opts, testLogger())

	_, err := f.Fetch(context.Background(), srv.URL+"/dp/X", &Trace{})

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindTimeout, ee.Kind)
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions(&sleepRecorder{})
	opts.Backoff = ratelimit.NewBackoff(time.Minute, 2)
	opts.Dial = func(_ context.Context, network, addr string) (net.Conn, error) {
		cancel()
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	f := New(testProfile, opts, testLogger())

	start := time.Now()
	_, err := f.Fetch(ctx, "http://www.amazon.in/dp/X", &Trace{})

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindTimeout, ee.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestFetch_DNSRecovery_NetworkUnreachable(t *testing.T) {
	var calls []string
	opts := testOptions(&sleepRecorder{})
	opts.Dial = dnsFailingDial
	opts.Probe = func(ctx context.Context) bool {
		calls = append(calls, "probe")
		return false
	}
	opts.AlternateLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "alternate")
		return nil, errors.New("unused")
	}
	opts.LocalLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "local")
		return nil, errors.New("unused")
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	_, err := f.Fetch(context.Background(), "http://www.amazon.in/dp/X", trace)

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindNetworkUnreachable, ee.Kind)
	assert.Equal(t, []string{"probe"}, calls)
	assert.Equal(t, []string{StrategyPrimary, StrategyPrimary, StrategyPrimary}, trace.Strategies())
}

func TestFetch_DNSRecovery_AlternateResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.Host)
		assert.Equal(t, "www.amazon.in", host)
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	var calls []string
	opts := testOptions(&sleepRecorder{})
	opts.Dial = dnsFailingDial
	opts.Probe = func(ctx context.Context) bool {
		calls = append(calls, "probe")
		return true
	}
	opts.AlternateLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "alternate")
		assert.Equal(t, "www.amazon.in", host)
		return []string{"127.0.0.1"}, nil
	}
	opts.LocalLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "local")
		return nil, errors.New("should not be reached")
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	resp, err := f.Fetch(context.Background(), siteURL(t, srv, "/dp/X"), trace)
	require.NoError(t, err)

	assert.Equal(t, "recovered", resp.Text())
	assert.Equal(t, StrategyAlternateDNS, resp.Strategy)
	assert.Equal(t, []string{"probe", "alternate"}, calls)
}

func TestFetch_DNSRecovery_LocalResolverNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions(&sleepRecorder{})
	opts.Dial = dnsFailingDial
	opts.Probe = func(ctx context.Context) bool { return true }
	opts.AlternateLookup = func(ctx context.Context, host string) ([]string, error) {
		return nil, &net.DNSError{Err: "server misbehaving", Name: host}
	}
	opts.LocalLookup = func(ctx context.Context, host string) ([]string, error) {
		return []string{"127.0.0.1"}, nil
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	_, err := f.Fetch(context.Background(), siteURL(t, srv, "/dp/X"), trace)

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindPageFetchFailed, ee.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ee.Status)
	assert.Equal(t, []string{StrategyPrimary, StrategyPrimary, StrategyPrimary, StrategyLocalDNS}, trace.Strategies())
}

func TestFetch_DNSRecovery_AllStepsFail(t *testing.T) {
	var calls []string
	opts := testOptions(&sleepRecorder{})
	opts.Dial = dnsFailingDial
	opts.Probe = func(ctx context.Context) bool {
		calls = append(calls, "probe")
		return true
	}
	opts.AlternateLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "alternate")
		return nil, errors.New("timeout")
	}
	opts.LocalLookup = func(ctx context.Context, host string) ([]string, error) {
		calls = append(calls, "local")
		return nil, errors.New("no such host")
	}
	f := New(testProfile, opts, testLogger())

	trace := &Trace{}
	_, err := f.Fetch(context.Background(), "http://www.amazon.in/dp/X", trace)

	var ee *models.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, models.KindConnectionFailed, ee.Kind)

	var dnsErr *net.DNSError
	assert.ErrorAs(t, err, &dnsErr, "original resolution error is kept")

	assert.Equal(t, []string{"probe", "alternate", "local"}, calls)
	assert.Equal(t, []string{
		StrategyPrimary, StrategyPrimary, StrategyPrimary, StrategyReducedHeaders,
	}, trace.Strategies())
	assert.Equal(t, "test-desktop-reduced", trace.Attempts[3].Profile)
}

func TestFetchWithProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MobileAgent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	}))
	defer srv.Close()

	f := New(testProfile, testOptions(&sleepRecorder{}), testLogger())
	trace := &Trace{}

	resp, err := f.FetchWithProfile(context.Background(), srv.URL+"/dp/X", Profile{ID: "mobile", UserAgent: "MobileAgent", TLS: "ios"}, trace)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, "mobile", resp.Profile)
	assert.Equal(t, []string{StrategyEvasion}, trace.Strategies())
}

func TestProfile_Reduced(t *testing.T) {
	p := Profile{
		ID:        "desktop",
		UserAgent: "UA",
		TLS:       "chrome",
		Headers: map[string]string{
			"accept-language": "de",
			"Sec-Fetch-Mode":  "navigate",
		},
	}

	r := p.Reduced()
	assert.Equal(t, "desktop-reduced", r.ID)
	assert.Equal(t, "UA", r.UserAgent)
	assert.Equal(t, "go", r.TLS)
	assert.Equal(t, map[string]string{"Accept-Language": "de"}, r.Headers)
	assert.Len(t, p.Headers, 2)
}

func TestClientHello(t *testing.T) {
	for _, name := range []string{"chrome", "Firefox", "edge", "safari", "ios"} {
		_, ok := clientHello(name)
		assert.True(t, ok, name)
	}
	_, ok := clientHello("go")
	assert.False(t, ok)
}

func TestPinnedDialer(t *testing.T) {
	var got string
	dial := pinnedDialer(func(ctx context.Context, network, addr string) (net.Conn, error) {
		got = addr
		return nil, errors.New("stop")
	}, map[string]string{"www.amazon.in": "10.0.0.1"})

	dial(context.Background(), "tcp", "www.amazon.in:443")
	assert.Equal(t, "10.0.0.1:443", got)

	dial(context.Background(), "tcp", "images.example.com:443")
	assert.Equal(t, "images.example.com:443", got)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected failure
	}{
		{"dns", &url.Error{Op: "Get", URL: "x", Err: dnsError("x")}, failureDNS},
		{"deadline", context.DeadlineExceeded, failureTimeout},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, failureConnection},
		{"reset", syscall.ECONNRESET, failureConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.err))
		})
	}
}

func TestIsConnectionLevel(t *testing.T) {
	wrap := func(err error) error {
		return &url.Error{Op: "Get", URL: "https://www.amazon.in/dp/B000TEST", Err: err}
	}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"decode failure", errors.New("gzip: invalid header"), false},
		{"refused", wrap(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}), true},
		{"dns", wrap(dnsError("www.amazon.in")), true},
		{"deadline", wrap(context.DeadlineExceeded), true},
		{"reset", wrap(syscall.ECONNRESET), true},
		{"too many redirects", wrap(errors.New("stopped after 10 redirects")), false},
		{"unknown authority", wrap(x509.UnknownAuthorityError{}), false},
		{"hostname mismatch", wrap(x509.HostnameError{Host: "www.amazon.in"}), false},
		{"expired certificate", wrap(x509.CertificateInvalidError{Reason: x509.Expired}), false},
		{"not tls", wrap(tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isConnectionLevel(tt.err))
		})
	}
}

func TestReadBody_Charset(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Type": []string{"text/html; charset=iso-8859-1"}},
		Body:   io.NopCloser(bytes.NewReader([]byte("caf\xe9"))),
	}
	body, err := readBody(resp, 1024)
	require.NoError(t, err)
	assert.Equal(t, "café", string(body))
}

func TestReadBody_Limit(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("a"), 100))),
	}
	body, err := readBody(resp, 10)
	require.NoError(t, err)
	assert.Len(t, body, 10)
}
