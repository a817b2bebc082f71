package parser

import (
	"regexp"
	"strings"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// Tier orders strategies by how much their source is trusted.
type Tier int

const (
	TierStructured Tier = iota + 1
	TierRegion
	TierFreeText
	TierRawBody
)

func (t Tier) String() string {
	switch t {
	case TierStructured:
		return "structured"
	case TierRegion:
		return "region"
	case TierFreeText:
		return "free-text"
	case TierRawBody:
		return "raw-body"
	}
	return "unknown"
}

// Strategy derives one field value from a document. ok is false when the strategy
// found nothing; the engine then moves on to the next one.
type Strategy struct {
	Name    string
	Tier    Tier
	Extract func(d *Document) (value string, ok bool)
}

// FieldRule is the ordered strategy list for one field.
type FieldRule struct {
	Field      string
	Strategies []Strategy
}

// ImageStrategy derives the gallery of a page.
type ImageStrategy struct {
	Name    string
	Tier    Tier
	Extract func(d *Document) []string
}

// Engine evaluates rule tables. Each field commits to its first successful
// strategy; later ones are never consulted.
type Engine struct {
	rules  []FieldRule
	images []ImageStrategy
}

func NewEngine(rules []FieldRule, images []ImageStrategy) *Engine {
	return &Engine{rules: rules, images: images}
}

func (e *Engine) Run(d *Document) (*models.ProductRecord, []models.FieldCandidate) {
	rec := &models.ProductRecord{ImageURLs: []string{}}
	var candidates []models.FieldCandidate

	for _, rule := range e.rules {
		if c, ok := evaluate(rule, d); ok {
			rec.Set(rule.Field, models.StringPtr(c.Value))
			candidates = append(candidates, c)
		}
	}

	for i, s := range e.images {
		if urls := s.Extract(d); len(urls) > 0 {
			rec.ImageURLs = urls
			candidates = append(candidates, models.FieldCandidate{
				Field:    models.FieldImageURLs,
				Value:    strings.Join(urls, " "),
				Strategy: s.Name,
				Tier:     s.Tier.String(),
				Rank:     i + 1,
			})
			break
		}
	}

	return rec, candidates
}

func evaluate(rule FieldRule, d *Document) (models.FieldCandidate, bool) {
	for i, s := range rule.Strategies {
		value, ok := s.Extract(d)
		if !ok {
			continue
		}
		if value = strings.TrimSpace(value); value == "" {
			continue
		}
		return models.FieldCandidate{
			Field:    rule.Field,
			Value:    value,
			Strategy: s.Name,
			Tier:     s.Tier.String(),
			Rank:     i + 1,
		}, true
	}
	return models.FieldCandidate{}, false
}

func productProperty(prop string) Strategy {
	return Strategy{
		Name: "jsonld:" + prop,
		Tier: TierStructured,
		Extract: func(d *Document) (string, bool) {
			return d.ProductProperty(prop)
		},
	}
}

func selectorText(selectors ...string) Strategy {
	return Strategy{
		Name: "region:" + strings.Join(selectors, ","),
		Tier: TierRegion,
		Extract: func(d *Document) (string, bool) {
			return d.FirstText(selectors...)
		},
	}
}

func detailKey(keys ...string) Strategy {
	return Strategy{
		Name: "detail:" + strings.Join(keys, "|"),
		Tier: TierRegion,
		Extract: func(d *Document) (string, bool) {
			return d.Detail(keys...)
		},
	}
}

const maxLabeledValue = 300

// labeledText matches "Label : value" lines in the harvested free text. The first
// capture group is the value.
func labeledText(name string, pattern *regexp.Regexp) Strategy {
	return Strategy{
		Name: "text:" + name,
		Tier: TierFreeText,
		Extract: func(d *Document) (string, bool) {
			return matchLabeled(pattern, d.FreeText())
		},
	}
}

func matchLabeled(pattern *regexp.Regexp, text string) (string, bool) {
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	value := strings.Trim(cleanText(m[1]), " |;,")
	if r := []rune(value); len(r) > maxLabeledValue {
		value = strings.TrimSpace(string(r[:maxLabeledValue]))
	}
	return value, value != ""
}

// keywordBlock returns the first harvested block containing any keyword.
func keywordBlock(keywords ...string) Strategy {
	return Strategy{
		Name: "keyword:" + strings.Join(keywords, "|"),
		Tier: TierFreeText,
		Extract: func(d *Document) (string, bool) {
			for _, text := range d.Texts() {
				lower := strings.ToLower(text)
				for _, kw := range keywords {
					if strings.Contains(lower, kw) {
						return text, true
					}
				}
			}
			return "", false
		},
	}
}

// asPrice normalizes whatever s finds into a price string, failing when no amount is present.
func asPrice(s Strategy, defaultSymbol string) Strategy {
	inner := s.Extract
	s.Extract = func(d *Document) (string, bool) {
		v, ok := inner(d)
		if !ok {
			return "", false
		}
		return NormalizePrice(v, defaultSymbol)
	}
	return s
}
