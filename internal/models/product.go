package models

import (
	"math"
	"time"
)

// Field names of a ProductRecord as they appear on the wire.
const (
	FieldName                = "name"
	FieldManufacturerAddress = "manufacturer_address"
	FieldNetQuantity         = "net_quantity"
	FieldMRP                 = "mrp"
	FieldConsumerCare        = "consumer_care"
	FieldDateOfManufacture   = "date_of_manufacture"
	FieldCountryOfOrigin     = "country_of_origin"
	FieldImageURLs           = "image_urls"
)

// ScalarFields lists the seven fields counted towards confidence, in record order.
var ScalarFields = []string{
	FieldName,
	FieldManufacturerAddress,
	FieldNetQuantity,
	FieldMRP,
	FieldConsumerCare,
	FieldDateOfManufacture,
	FieldCountryOfOrigin,
}

// ProductRecord is the outcome of a successful extraction. Absent fields are nil
// and serialize as JSON null.
type ProductRecord struct {
	Name                *string  `json:"name"`
	ManufacturerAddress *string  `json:"manufacturer_address"`
	NetQuantity         *string  `json:"net_quantity"`
	MRP                 *string  `json:"mrp"`
	ConsumerCare        *string  `json:"consumer_care"`
	DateOfManufacture   *string  `json:"date_of_manufacture"`
	CountryOfOrigin     *string  `json:"country_of_origin"`
	ImageURLs           []string `json:"image_urls"`
	Confidence          float64  `json:"confidence"`
}

// Get returns the value of a scalar field by its wire name.
func (p *ProductRecord) Get(field string) *string {
	switch field {
	case FieldName:
		return p.Name
	case FieldManufacturerAddress:
		return p.ManufacturerAddress
	case FieldNetQuantity:
		return p.NetQuantity
	case FieldMRP:
		return p.MRP
	case FieldConsumerCare:
		return p.ConsumerCare
	case FieldDateOfManufacture:
		return p.DateOfManufacture
	case FieldCountryOfOrigin:
		return p.CountryOfOrigin
	}
	return nil
}

// Set assigns a scalar field by its wire name. Unknown names are ignored.
func (p *ProductRecord) Set(field string, value *string) {
	switch field {
	case FieldName:
		p.Name = value
	case FieldManufacturerAddress:
		p.ManufacturerAddress = value
	case FieldNetQuantity:
		p.NetQuantity = value
	case FieldMRP:
		p.MRP = value
	case FieldConsumerCare:
		p.ConsumerCare = value
	case FieldDateOfManufacture:
		p.DateOfManufacture = value
	case FieldCountryOfOrigin:
		p.CountryOfOrigin = value
	}
}

// PresentFields counts the non-nil scalar fields. Image URLs are not counted.
func (p *ProductRecord) PresentFields() int {
	n := 0
	for _, f := range ScalarFields {
		if p.Get(f) != nil {
			n++
		}
	}
	return n
}

// Confidence is the share of present scalar fields rounded to two decimals.
func Confidence(present int) float64 {
	return math.Round(float64(present)/float64(len(ScalarFields))*100) / 100
}

// UpdateConfidence recomputes Confidence from the current field values.
func (p *ProductRecord) UpdateConfidence() {
	p.Confidence = Confidence(p.PresentFields())
}

// Clone returns a copy that shares no slices with p.
func (p *ProductRecord) Clone() *ProductRecord {
	c := *p
	c.ImageURLs = append([]string{}, p.ImageURLs...)
	return &c
}

// FieldCandidate is a value proposed for a field by one extraction strategy.
type FieldCandidate struct {
	Field    string `json:"field_name"`
	Value    string `json:"value"`
	Strategy string `json:"source_strategy"`
	Tier     string `json:"source_tier"`
	Rank     int    `json:"strategy_rank"`
}

// FetchAttempt records one network try made while extracting a page.
type FetchAttempt struct {
	Strategy string        `json:"strategy_id"`
	Profile  string        `json:"headers_profile"`
	URL      string        `json:"url"`
	Status   int           `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SubmittedProduct is a record stored through the products endpoint.
// The record fields are inlined so a body returned by /extract can be posted as is.
type SubmittedProduct struct {
	ID string `json:"id"`
	ProductRecord
	SourceURL string    `json:"source_url,omitempty"`
	OCRText   []string  `json:"ocr_text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
