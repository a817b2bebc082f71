package parser

import (
	"github.com/maltedev/amazon-label-extractor/internal/models"
)

// Parser turns a fetched product page into a record.
type Parser interface {
	Parse(body string) (*Result, error)
}

// Result is a normalized record plus the candidate that won each field.
type Result struct {
	Record     *models.ProductRecord
	Candidates []models.FieldCandidate
}

// Options bound what the extractor accepts as a price.
type Options struct {
	PriceMin        float64
	PriceMax        float64
	DefaultCurrency string
}

func DefaultOptions() Options {
	return Options{
		PriceMin:        100,
		PriceMax:        1000000,
		DefaultCurrency: "₹",
	}
}
