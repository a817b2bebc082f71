package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

var (
	amountRe = regexp.MustCompile(`\d[\d.,]*`)
	printer  = message.NewPrinter(language.English)
)

// Price is a parsed monetary amount.
type Price struct {
	Symbol   string
	Whole    int64
	Fraction string // two digits, "" when zero
}

func (p Price) Value() float64 {
	v := float64(p.Whole)
	if p.Fraction != "" {
		f, _ := strconv.ParseFloat("0."+p.Fraction, 64)
		v += f
	}
	return v
}

// String renders the price symbol-prefixed with thousands grouping: ₹1,299 or ₹1,299.50.
func (p Price) String() string {
	s := p.Symbol + printer.Sprintf("%d", p.Whole)
	if p.Fraction != "" {
		s += "." + p.Fraction
	}
	return s
}

// ParsePrice reads the first amount in text. The currency comes from a symbol or
// code in text, else defaultSymbol.
func ParsePrice(text, defaultSymbol string) (Price, bool) {
	raw := strings.TrimRight(amountRe.FindString(text), ".,")
	if raw == "" {
		return Price{}, false
	}

	whole, fraction := splitAmount(raw)
	digits := strings.NewReplacer(",", "", ".", "").Replace(whole)
	if digits == "" {
		return Price{}, false
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Price{}, false
	}

	if len(fraction) == 1 {
		fraction += "0"
	}
	if strings.Trim(fraction, "0") == "" {
		fraction = ""
	}

	return Price{Symbol: currencySymbol(text, defaultSymbol), Whole: n, Fraction: fraction}, true
}

// NormalizePrice is ParsePrice rendered as a string.
func NormalizePrice(text, defaultSymbol string) (string, bool) {
	p, ok := ParsePrice(text, defaultSymbol)
	if !ok {
		return "", false
	}
	return p.String(), true
}

// splitAmount separates the integer part from a decimal fraction of at most two digits.
// With both separators present the last one is decimal; with one kind it is decimal
// only when it occurs once and is followed by one or two digits.
func splitAmount(raw string) (whole, fraction string) {
	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")

	sep := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		sep = max(lastDot, lastComma)
	case lastDot >= 0 && strings.Count(raw, ".") == 1:
		sep = lastDot
	case lastComma >= 0 && strings.Count(raw, ",") == 1:
		sep = lastComma
	}

	if sep >= 0 {
		tail := raw[sep+1:]
		if len(tail) >= 1 && len(tail) <= 2 && !strings.ContainsAny(tail, ".,") {
			return raw[:sep], tail
		}
	}
	return raw, ""
}

func currencySymbol(text, defaultSymbol string) string {
	switch {
	case strings.Contains(text, "₹"), strings.Contains(text, "Rs"), strings.Contains(text, "INR"):
		return "₹"
	case strings.Contains(text, "€"), strings.Contains(text, "EUR"):
		return "€"
	case strings.Contains(text, "£"), strings.Contains(text, "GBP"):
		return "£"
	case strings.Contains(text, "$"), strings.Contains(text, "USD"):
		return "$"
	}
	return defaultSymbol
}

// Normalize completes a record. Scheme-relative image URLs get an https: prefix
// and duplicates are dropped in first-seen order. Confidence is recomputed.
func Normalize(rec *models.ProductRecord) {
	rec.ImageURLs = DedupeImages(rec.ImageURLs)
	rec.UpdateConfidence()
}

func DedupeImages(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if strings.HasPrefix(u, "//") {
			u = "https:" + u
		}
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
