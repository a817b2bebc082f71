package scraper

import (
	"net/url"
	"strings"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// SiteGate admits only URLs on supported hosts and their subdomains.
type SiteGate struct {
	hosts []string
}

func NewSiteGate(hosts []string) *SiteGate {
	g := &SiteGate{}
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			g.hosts = append(g.hosts, strings.TrimPrefix(h, "."))
		}
	}
	return g
}

// Check returns an UnsupportedSite error for anything the extractor cannot handle.
func (g *SiteGate) Check(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		e := models.NewUnsupportedSite(raw)
		e.Err = ErrInvalidURL
		return e
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range g.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return models.NewUnsupportedSite(raw)
}
