package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/maltedev/amazon-label-extractor/internal/models"
)

var (
	netQuantityRe     = regexp.MustCompile(`(?i)net\s*(?:quantity|qty|content|wt|weight)\.?\s*[:\-]\s*([^\n]+)`)
	countryOfOriginRe = regexp.MustCompile(`(?i)country\s*of\s*origin\s*[:\-]\s*([^\n]+)`)
	manufactureDateRe = regexp.MustCompile(`(?i)(?:date\s*of\s*manufactur(?:e|ing)|mfg\.?\s*date|manufactur(?:ed|ing)\s*date|date\s*first\s*available)\s*[:\-]\s*([^\n]+)`)
	mrpLabelRe        = regexp.MustCompile(`(?i)M\.?\s?R\.?\s?P\.?(?:\s*\([^)]*\))?\s*[:\-]?\s*((?:₹|Rs\.?|INR)\s*\d[\d,]*(?:\.\d{1,2})?)`)

	// Raw-body currency tokens, tried in order.
	rawPriceRes = []*regexp.Regexp{
		regexp.MustCompile(`₹\s*(\d[\d,]*(?:\.\d{1,2})?)`),
		regexp.MustCompile(`\bINR\s*(\d[\d,]*(?:\.\d{1,2})?)`),
		regexp.MustCompile(`\bRs\.?\s*(\d[\d,]*(?:\.\d{1,2})?)`),
	}

	colorImagesRe = regexp.MustCompile(`["']colorImages["']\s*:\s*\{\s*["']initial["']\s*:\s*`)
	hiResImageRes = []*regexp.Regexp{
		regexp.MustCompile(`"hiRes"\s*:\s*"(https?://[^"]+)"`),
		regexp.MustCompile(`(https?://[^"'\s]+?\._[A-Z0-9_,]*(?:SL|UL|SX|SY)1[0-9]{3}_\.(?:jpg|jpeg|png|webp))`),
	}
)

// Price regions in the order they are consulted.
var priceSelectors = []string{
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	".a-price .a-offscreen",
	".a-price-whole",
}

// AmazonParser extracts label fields from Amazon product pages.
type AmazonParser struct {
	opts   Options
	engine *Engine
}

func NewAmazonParser(opts Options) *AmazonParser {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "₹"
	}
	return &AmazonParser{
		opts:   opts,
		engine: NewEngine(AmazonRules(opts), AmazonImageStrategies()),
	}
}

func (p *AmazonParser) Parse(body string) (*Result, error) {
	doc, err := NewDocument(body)
	if err != nil {
		return nil, err
	}

	rec, candidates := p.engine.Run(doc)
	Normalize(rec)

	return &Result{Record: rec, Candidates: candidates}, nil
}

// PriceFromText looks for a price in texts that did not come from the page, such
// as OCR output of label images. Labeled MRP wins over bare currency tokens.
func (p *AmazonParser) PriceFromText(texts []string) (string, bool) {
	joined := strings.Join(texts, "\n")
	if v, ok := matchLabeled(mrpLabelRe, joined); ok {
		if price, ok := NormalizePrice(v, p.opts.DefaultCurrency); ok {
			return price, true
		}
	}
	return firstPriceInRange(joined, p.opts)
}

// AmazonRules is the strategy table for every scalar field.
func AmazonRules(opts Options) []FieldRule {
	mrp := []Strategy{
		offerPrice(opts.DefaultCurrency),
		asPrice(detailKey("M.R.P.", "MRP", "Maximum Retail Price"), opts.DefaultCurrency),
	}
	for _, sel := range priceSelectors {
		mrp = append(mrp, asPrice(selectorText(sel), opts.DefaultCurrency))
	}
	mrp = append(mrp,
		asPrice(labeledText("mrp", mrpLabelRe), opts.DefaultCurrency),
		rawCurrency(opts),
	)

	return []FieldRule{
		{
			Field: models.FieldName,
			Strategies: []Strategy{
				productProperty("name"),
				selectorText("#productTitle", "h1#title", "h1 span#productTitle"),
			},
		},
		{
			Field: models.FieldManufacturerAddress,
			Strategies: []Strategy{
				detailKey("Manufacturer", "Manufacturer Address"),
				keywordBlock("manufacturer"),
			},
		},
		{
			Field: models.FieldNetQuantity,
			Strategies: []Strategy{
				detailKey("Net Quantity", "Net Qty"),
				labeledText("net-quantity", netQuantityRe),
			},
		},
		{
			Field:      models.FieldMRP,
			Strategies: mrp,
		},
		{
			Field: models.FieldConsumerCare,
			Strategies: []Strategy{
				detailKey("Customer Care", "Consumer Care", "Customer Care Details", "Consumer Complaints"),
				keywordBlock("care", "contact"),
			},
		},
		{
			Field: models.FieldDateOfManufacture,
			Strategies: []Strategy{
				detailKey("Date of Manufacture", "Date First Available"),
				labeledText("date-of-manufacture", manufactureDateRe),
			},
		},
		{
			Field: models.FieldCountryOfOrigin,
			Strategies: []Strategy{
				productProperty("countryOfOrigin"),
				detailKey("Country of Origin"),
				labeledText("country-of-origin", countryOfOriginRe),
			},
		},
	}
}

func AmazonImageStrategies() []ImageStrategy {
	return []ImageStrategy{
		{Name: "color-images", Tier: TierRawBody, Extract: colorImages},
		{Name: "raw-hires", Tier: TierRawBody, Extract: rawHiResImages},
		{Name: "landing-image", Tier: TierRegion, Extract: func(d *Document) []string {
			if src, ok := d.Attr("#landingImage", "src", "data-old-hires"); ok {
				return []string{src}
			}
			return nil
		}},
	}
}

func offerPrice(defaultSymbol string) Strategy {
	return Strategy{
		Name: "jsonld:offers.price",
		Tier: TierStructured,
		Extract: func(d *Document) (string, bool) {
			price, currency, ok := d.OfferPrice()
			if !ok {
				return "", false
			}
			return NormalizePrice(currency+" "+price, currencyCodeSymbol(currency, defaultSymbol))
		},
	}
}

func currencyCodeSymbol(code, defaultSymbol string) string {
	switch strings.ToUpper(code) {
	case "INR":
		return "₹"
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	}
	return defaultSymbol
}

// rawCurrency scans the whole body for currency tokens. Only amounts inside the
// plausible range count, which keeps SKU-like numbers out.
func rawCurrency(opts Options) Strategy {
	return Strategy{
		Name: "raw:currency",
		Tier: TierRawBody,
		Extract: func(d *Document) (string, bool) {
			return firstPriceInRange(d.Raw(), opts)
		},
	}
}

func firstPriceInRange(text string, opts Options) (string, bool) {
	for _, re := range rawPriceRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			price, ok := ParsePrice(m[1], "₹")
			if !ok {
				continue
			}
			if v := price.Value(); v < opts.PriceMin || v > opts.PriceMax {
				continue
			}
			return price.String(), true
		}
	}
	return "", false
}

type colorImage struct {
	HiRes   string `json:"hiRes"`
	Large   string `json:"large"`
	MainURL string `json:"mainUrl"`
}

// colorImages decodes the gallery array embedded in the page script and keeps the
// best URL of each entry.
func colorImages(d *Document) []string {
	raw := d.Raw()
	for _, loc := range colorImagesRe.FindAllStringIndex(raw, -1) {
		var entries []colorImage
		if err := json.NewDecoder(strings.NewReader(raw[loc[1]:])).Decode(&entries); err != nil {
			continue
		}

		var urls []string
		for _, e := range entries {
			switch {
			case e.HiRes != "":
				urls = append(urls, e.HiRes)
			case e.Large != "":
				urls = append(urls, e.Large)
			case e.MainURL != "":
				urls = append(urls, e.MainURL)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

func rawHiResImages(d *Document) []string {
	for _, re := range hiResImageRes {
		var urls []string
		for _, m := range re.FindAllStringSubmatch(d.Raw(), -1) {
			urls = append(urls, m[1])
		}
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}
