package scraper

import (
	"bytes"
	"strings"
)

// BlockDetector recognises challenge pages served instead of product content.
type BlockDetector struct {
	phrases [][]byte
}

func NewBlockDetector(phrases []string) *BlockDetector {
	d := &BlockDetector{}
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			d.phrases = append(d.phrases, []byte(strings.ToLower(p)))
		}
	}
	return d
}

// Match returns the first indicator phrase found in body, case-insensitively.
func (d *BlockDetector) Match(body []byte) (string, bool) {
	lower := bytes.ToLower(body)
	for _, p := range d.phrases {
		if bytes.Contains(lower, p) {
			return string(p), true
		}
	}
	return "", false
}

func (d *BlockDetector) IsBlocked(body []byte) bool {
	_, blocked := d.Match(body)
	return blocked
}
