package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Amazon pads detail labels with bidi marks: "Manufacturer ‏ : ‎ Acme".
	bidiReplacer = strings.NewReplacer("\u200e", "", "\u200f", "", "\u00a0", " ")
)

var detailTableSelectors = []string{
	"#productDetails_techSpec_section_1",
	"#productDetails_detailBullets_sections1",
	"#productDetails_techSpec_section_2",
	"table.prodDetTable",
}

var detailListSelectors = []string{
	".detail-bullet-list li",
	"#detailBullets_feature_div li",
}

var textBlockSelectors = []string{
	"#feature-bullets li",
	"#productDescription",
	"#important-information .content",
	"#productFactsDesktopExpander li",
}

type detail struct {
	key   string
	value string
}

// Document is a parsed product page with the tables, text blocks and structured
// data every strategy reads from. It is built once per page and read-only after.
type Document struct {
	doc      *goquery.Document
	raw      string
	details  []detail
	texts    []string
	products []map[string]interface{}
	offers   []map[string]interface{}
}

func NewDocument(body string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Document{doc: doc, raw: body}
	d.collectStructuredData()
	d.collectDetails()
	d.collectTexts()

	return d, nil
}

func (d *Document) Raw() string {
	return d.raw
}

// Detail returns the first detail value whose cleaned key equals one of keys,
// compared case-insensitively. Keys are tried in order.
func (d *Document) Detail(keys ...string) (string, bool) {
	for _, key := range keys {
		want := cleanKey(key)
		for _, det := range d.details {
			if strings.EqualFold(det.key, want) && det.value != "" {
				return det.value, true
			}
		}
	}
	return "", false
}

// Texts are the harvested bullet, description and detail lines in page order.
func (d *Document) Texts() []string {
	return d.texts
}

// FreeText joins every harvested line.
func (d *Document) FreeText() string {
	return strings.Join(d.texts, "\n")
}

// FirstText returns the first non-empty text among the selectors, in selector order.
func (d *Document) FirstText(selectors ...string) (string, bool) {
	for _, sel := range selectors {
		var found string
		d.doc.Find(sel).EachWithBreak(func(i int, s *goquery.Selection) bool {
			found = cleanText(s.Text())
			return found == ""
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// Attr returns the first non-empty attribute value among attrs on the first node matching selector.
func (d *Document) Attr(selector string, attrs ...string) (string, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	for _, attr := range attrs {
		if v, ok := sel.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" && !strings.HasPrefix(v, "data:") {
				return v, true
			}
		}
	}
	return "", false
}

func (d *Document) collectDetails() {
	for _, tableSel := range detailTableSelectors {
		d.doc.Find(tableSel).Find("tr").Each(func(i int, row *goquery.Selection) {
			key := cleanKey(row.Find("th, td.prodDetSectionEntry").First().Text())
			valueSel := row.Find("td.prodDetAttrValue").First()
			if valueSel.Length() == 0 {
				valueSel = row.Find("td").Last()
			}
			d.addDetail(key, cleanText(valueSel.Text()))
		})
	}

	for _, listSel := range detailListSelectors {
		d.doc.Find(listSel).Each(func(i int, li *goquery.Selection) {
			key, value, ok := strings.Cut(cleanText(li.Text()), ":")
			if !ok {
				return
			}
			d.addDetail(cleanKey(key), strings.TrimSpace(value))
		})
	}
}

// addDetail keeps the first value seen for a key.
func (d *Document) addDetail(key, value string) {
	if key == "" || value == "" {
		return
	}
	for _, det := range d.details {
		if strings.EqualFold(det.key, key) {
			return
		}
	}
	d.details = append(d.details, detail{key: key, value: value})
}

func (d *Document) collectTexts() {
	seen := make(map[string]bool)
	add := func(text string) {
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		d.texts = append(d.texts, text)
	}

	addLines := func(s *goquery.Selection) {
		for _, line := range blockLines(s) {
			add(line)
		}
	}

	d.doc.Find(textBlockSelectors[0]).Each(func(i int, s *goquery.Selection) {
		addLines(s)
	})
	for _, det := range d.details {
		add(det.key + ": " + det.value)
	}
	for _, sel := range textBlockSelectors[1:] {
		d.doc.Find(sel).Each(func(i int, s *goquery.Selection) {
			addLines(s)
		})
	}
}

// lineBreakTags end the current line when opened or closed.
var lineBreakTags = map[string]bool{
	"br": true, "p": true, "li": true, "div": true, "tr": true,
	"ul": true, "ol": true, "table": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true,
}

// blockLines splits a block into cleaned, non-empty lines. Newlines in text and
// block-level elements both break lines; inline elements are joined as-is.
func blockLines(s *goquery.Selection) []string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		breaks := n.Type == html.ElementNode && lineBreakTags[n.Data]
		if breaks {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if breaks {
			b.WriteByte('\n')
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = cleanText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (d *Document) collectStructuredData() {
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		d.walkStructured(data)
	})
}

func (d *Document) walkStructured(data interface{}) {
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			d.walkStructured(item)
		}
	case map[string]interface{}:
		if graph, ok := v["@graph"]; ok {
			d.walkStructured(graph)
		}
		switch {
		case hasType(v, "Product"):
			d.products = append(d.products, v)
			d.walkOffers(v["offers"])
		case hasType(v, "Offer", "AggregateOffer"):
			d.offers = append(d.offers, v)
		}
	}
}

func (d *Document) walkOffers(data interface{}) {
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			d.walkOffers(item)
		}
	case map[string]interface{}:
		d.offers = append(d.offers, v)
	}
}

// ProductProperty returns the first non-empty string value of prop among product nodes.
// Object values contribute their "name".
func (d *Document) ProductProperty(prop string) (string, bool) {
	for _, node := range d.products {
		if s := stringValue(node[prop]); s != "" {
			return s, true
		}
	}
	return "", false
}

// OfferPrice returns the first offer price with its ISO currency code.
func (d *Document) OfferPrice() (price, currency string, ok bool) {
	for _, offer := range d.offers {
		p := stringValue(offer["price"])
		if p == "" {
			p = stringValue(offer["lowPrice"])
		}
		if p != "" {
			return p, stringValue(offer["priceCurrency"]), true
		}
	}
	return "", "", false
}

func hasType(node map[string]interface{}, types ...string) bool {
	var values []string
	switch t := node["@type"].(type) {
	case string:
		values = []string{t}
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	}

	for _, v := range values {
		v = strings.TrimPrefix(v, "http://schema.org/")
		v = strings.TrimPrefix(v, "https://schema.org/")
		for _, want := range types {
			if v == want {
				return true
			}
		}
	}
	return false
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return cleanText(t)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", t), "0"), ".")
	case map[string]interface{}:
		return stringValue(t["name"])
	}
	return ""
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(bidiReplacer.Replace(s), " "))
}

func cleanKey(s string) string {
	return strings.TrimSpace(strings.Trim(cleanText(s), ":"))
}
