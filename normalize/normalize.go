// Package normalize turns raw scraped fields into canonical values. All
// functions are pure and deterministic.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/bdpricegear/pricegear/models"
	"github.com/shopspring/decimal"
)

var priceRe = regexp.MustCompile(`[\d.,]+`)

// droppedParams are query parameters that vary between visits to the same
// product page (pagination, search context, result shaping). Two URLs
// differing only in these must normalize identically.
var droppedParams = []string{"page", "search", "q", "keyword", "sort", "order", "limit"}

// Price extracts the first run of digits and separators from raw price
// text. An absent or unparseable price yields an invalid NullDecimal,
// meaning out of stock; a price is never assumed zero-but-valid.
func Price(text string) decimal.NullDecimal {
	match := priceRe.FindString(text)
	if match == "" {
		return decimal.NullDecimal{}
	}
	num := strings.ReplaceAll(match, ",", "")
	d, err := decimal.NewFromString(num)
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// URL strips the dropped query parameters and the fragment from a product
// URL. It is idempotent: URL(URL(u)) == URL(u).
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, p := range droppedParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// Query canonicalizes a free-text comparison query for use as a cache key:
// lowercased with runs of whitespace collapsed to single spaces.
func Query(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Item cleans one raw listing card. The stock status is out_of_stock when
// the price is missing/unparseable or the adapter saw an out-of-stock
// marker on the card.
func Item(raw models.RawItem) models.NormalizedItem {
	price := Price(raw.PriceText)
	status := models.StockInStock
	if !price.Valid || !raw.InStockHint {
		status = models.StockOutOfStock
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = models.NameNotFound
	}
	return models.NormalizedItem{
		Name:          name,
		NormalizedURL: URL(raw.LinkURL),
		Price:         price,
		StockStatus:   status,
		ImageURL:      strings.TrimSpace(raw.ImageURL),
	}
}
