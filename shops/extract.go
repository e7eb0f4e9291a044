package shops

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bdpricegear/pricegear/models"
)

// extractItems walks every listing card in doc and degrades missing fields
// to sentinel values. One malformed card never aborts the page.
func extractItems(doc *goquery.Document, pageURL *url.URL, sel Selectors) []models.RawItem {
	var items []models.RawItem
	doc.Find(sel.Item).Each(func(_ int, card *goquery.Selection) {
		items = append(items, extractCard(card, pageURL, sel))
	})
	return items
}

func extractCard(card *goquery.Selection, pageURL *url.URL, sel Selectors) models.RawItem {
	name := strings.TrimSpace(card.Find(sel.Name).First().Text())
	if name == "" {
		name = models.NameNotFound
	}

	priceText := strings.TrimSpace(card.Find(sel.Price).First().Text())
	if priceText == "" && sel.AltPrice != "" {
		priceText = strings.TrimSpace(card.Find(sel.AltPrice).First().Text())
	}

	link := firstAttr(card.Find(sel.Link).First(), []string{"href"})
	img := firstAttr(card.Find(sel.Image).First(), sel.ImageAttrs)

	inStock := true
	if sel.OutOfStock != "" && card.Find(sel.OutOfStock).Length() > 0 {
		inStock = false
	}

	return models.RawItem{
		Name:        name,
		PriceText:   priceText,
		ImageURL:    absoluteURL(pageURL, img),
		LinkURL:     absoluteURL(pageURL, link),
		InStockHint: inStock,
	}
}

func firstAttr(s *goquery.Selection, attrs []string) string {
	for _, attr := range attrs {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// absoluteURL resolves ref against the page URL; several shops emit
// root-relative image and product links.
func absoluteURL(pageURL *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if pageURL == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return pageURL.ResolveReference(parsed).String()
}

// isChallengePage reports whether the document looks like a bot check
// rather than a result listing.
func isChallengePage(doc *goquery.Document, sel Selectors) bool {
	if sel.Challenge == "" {
		return false
	}
	return doc.Find(sel.Challenge).Length() > 0
}
