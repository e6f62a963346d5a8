package htmlutil

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// Parse builds a goquery document from raw HTML bytes. Fetching is the
// HTTP client's job so docs pages ride the shared cache.
func Parse(raw []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// TableRows extracts table rows as header→value maps from the first table
// matching the given CSS selector. The first row (or <thead>) is used as headers.
func TableRows(doc *goquery.Document, selector string) []map[string]string {
	var rows []map[string]string

	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil
	}

	// Extract headers from <thead> or first <tr>.
	var headers []string
	thead := table.Find("thead tr").First()
	if thead.Length() > 0 {
		thead.Find("th").Each(func(_ int, s *goquery.Selection) {
			headers = append(headers, normalizeHeader(s.Text()))
		})
	}

	bodyRows := table.Find("tbody tr")
	if bodyRows.Length() == 0 {
		// Fallback: all <tr> elements, first is header.
		allRows := table.Find("tr")
		if allRows.Length() < 2 {
			return nil
		}
		if len(headers) == 0 {
			allRows.First().Find("th, td").Each(func(_ int, s *goquery.Selection) {
				headers = append(headers, normalizeHeader(s.Text()))
			})
		}
		bodyRows = allRows.Slice(1, allRows.Length())
	}

	if len(headers) == 0 {
		return nil
	}

	bodyRows.Each(func(_ int, row *goquery.Selection) {
		m := make(map[string]string, len(headers))
		row.Find("td").Each(func(i int, cell *goquery.Selection) {
			if i < len(headers) {
				m[headers[i]] = strings.TrimSpace(cell.Text())
			}
		})
		if len(m) > 0 {
			rows = append(rows, m)
		}
	})

	return rows
}

// TextOf returns the trimmed text of the first element matching the selector.
func TextOf(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// priceRe matches patterns like "$0.150", "$0.150 / 1M tokens", "$15.00 / 1M".
var priceRe = regexp.MustCompile(`\$\s*([\d,.]+)`)

var perThousand = decimal.NewFromInt(1000)

// ParsePriceDollars parses a price string like "$0.150 / 1M tokens" and
// converts it to a per-1K token cost. Returns (value, true) on success or
// (zero, false) if parsing fails.
func ParsePriceDollars(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "—" || s == "-" || s == "N/A" {
		return decimal.Zero, false
	}

	matches := priceRe.FindStringSubmatch(s)
	if len(matches) < 2 {
		return decimal.Zero, false
	}

	numStr := strings.ReplaceAll(matches[1], ",", "")
	val, err := decimal.NewFromString(numStr)
	if err != nil {
		return decimal.Zero, false
	}

	// Detect if the price is per 1M tokens and convert to per 1K.
	lower := strings.ToLower(s)
	if strings.Contains(lower, "1m") || strings.Contains(lower, "million") {
		val = val.Div(perThousand)
	}

	return val, true
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
