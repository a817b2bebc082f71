package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/maltedev/amazon-label-extractor/internal/config"
)

// Profile is a client identity presented to the site. Each profile gets its own
// session, so cookies and connections never leak between identities.
type Profile struct {
	ID        string
	UserAgent string
	// TLS selects the ClientHello fingerprint: chrome, firefox, edge, safari, ios or go.
	TLS     string
	Headers map[string]string
}

func NewProfile(c config.ProfileConfig) Profile {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return Profile{
		ID:        c.ID,
		UserAgent: c.UserAgent,
		TLS:       c.TLS,
		Headers:   headers,
	}
}

func NewProfiles(cs []config.ProfileConfig) []Profile {
	out := make([]Profile, 0, len(cs))
	for _, c := range cs {
		out = append(out, NewProfile(c))
	}
	return out
}

// Reduced keeps only the user agent and language preference.
func (p Profile) Reduced() Profile {
	r := Profile{
		ID:        p.ID + "-reduced",
		UserAgent: p.UserAgent,
		TLS:       "go",
		Headers:   map[string]string{},
	}
	for k, v := range p.Headers {
		if strings.EqualFold(k, "Accept-Language") {
			r.Headers["Accept-Language"] = v
		}
	}
	return r
}

func (p Profile) apply(req *http.Request) {
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
}

func clientHello(name string) (utls.ClientHelloID, bool) {
	switch strings.ToLower(name) {
	case "chrome":
		return utls.HelloChrome_Auto, true
	case "firefox":
		return utls.HelloFirefox_Auto, true
	case "edge":
		return utls.HelloEdge_Auto, true
	case "safari":
		return utls.HelloSafari_Auto, true
	case "ios":
		return utls.HelloIOS_Auto, true
	}
	return utls.ClientHelloID{}, false
}

// h1Spec turns a browser ClientHello into one that only offers http/1.1 in ALPN.
// net/http cannot speak h2 over a utls connection.
func h1Spec(id utls.ClientHelloID) (*utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return &spec, nil
}

// fingerprintDialer performs the TLS handshake with a browser fingerprint.
func fingerprintDialer(id utls.ClientHelloID, dial DialFunc, insecure bool) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		spec, err := h1Spec(id)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("build tls spec %s: %w", id.Str(), err)
		}

		tlsConn := utls.UClient(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: insecure,
		}, utls.HelloCustom)
		if err := tlsConn.ApplyPreset(spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply tls spec %s: %w", id.Str(), err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}

func stdTLSConfig(insecure bool) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: insecure,
		NextProtos:         []string{"http/1.1"},
	}
}
