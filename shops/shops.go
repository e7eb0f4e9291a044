// Package shops implements the per-storefront adapters. Every shop sits
// behind the same Adapter interface; what differs per shop is a small
// data-driven configuration of URL template and CSS selectors, not code.
package shops

import (
	"context"
	"time"

	"github.com/bdpricegear/pricegear/models"
)

// Adapter fetches one page of search results from a storefront and parses
// it into raw items. hasMore is a heuristic (len(items) > 0); the caller
// owns the decision to stop paginating. Adapters never retry internally.
type Adapter interface {
	Name() string
	Logo() string
	FetchPage(ctx context.Context, query string, page int) (items []models.RawItem, hasMore bool, err error)
}

// Session is a per-crawl resource owned by an adapter, typically a browser
// context. It must be closed on every exit path.
type Session interface {
	Close()
}

// SessionStarter is implemented by adapters that need per-crawl resources.
// The crawl orchestrator opens a session before paginating and closes it
// when the shop's crawl ends, on success or failure.
type SessionStarter interface {
	StartSession(ctx context.Context) (Session, error)
}

// Selectors locates listing-card fields inside a shop's result markup.
type Selectors struct {
	// Item matches one listing card.
	Item string
	// Name, Price, Image and Link are resolved relative to the card.
	// AltPrice is tried when Price matches nothing (sale vs. regular price
	// markup on several OpenCart themes).
	Name     string
	Price    string
	AltPrice string
	Image    string
	Link     string
	// ImageAttrs are tried in order on the Image element; lazy-loading
	// themes keep the real URL in data-src.
	ImageAttrs []string
	// OutOfStock, when non-empty and matching within a card, marks that
	// card unavailable regardless of price text.
	OutOfStock string
	// Challenge, when non-empty and matching anywhere in the page, marks
	// the whole response as a bot-check interstitial.
	Challenge string
}

// Config is the complete data-driven description of one storefront.
type Config struct {
	Name string
	Logo string
	// SearchURL is an fmt template receiving the escaped query and the
	// page number, in that order.
	SearchURL string
	Headers   map[string]string
	// Dynamic shops render their listings client-side and need a headless
	// browser; static shops are plain HTTP GET + parse.
	Dynamic bool
	// Delay overrides the crawler's politeness delay for this shop.
	Delay     time.Duration
	Selectors Selectors
}

var defaultImageAttrs = []string{"src", "data-src"}

// DefaultConfigs returns the seven storefronts this deployment scrapes.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:      "StarTech",
			Logo:      "https://www.startech.com.bd/image/catalog/logo.png",
			SearchURL: "https://www.startech.com.bd/product/search?search=%s&page=%d",
			Headers: map[string]string{
				"Accept-Language": "en-US,en;q=0.9",
			},
			Selectors: Selectors{
				Item:       ".p-item",
				Name:       ".p-item-name",
				Price:      ".price-new",
				AltPrice:   ".p-item-price",
				Image:      ".p-item-img img",
				Link:       ".p-item-img a",
				ImageAttrs: defaultImageAttrs,
				Challenge:  "#challenge-form",
			},
		},
		{
			Name:      "SkyLand",
			Logo:      "https://www.skyland.com.bd/image/catalog/logo.png",
			SearchURL: "https://www.skyland.com.bd/index.php?route=product/search&search=%s&page=%d",
			Selectors: Selectors{
				Item:       ".product-layout",
				Name:       ".name",
				Price:      ".price-new",
				Image:      ".product-img img",
				Link:       ".name a",
				ImageAttrs: defaultImageAttrs,
			},
		},
		{
			Name:      "PcHouse",
			Logo:      "https://www.pchouse.com.bd/image/catalog/unnamed.png",
			SearchURL: "https://www.pchouse.com.bd/product/search?search=%s&page=%d",
			Headers: map[string]string{
				"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			},
			Selectors: Selectors{
				Item:       ".single-product-item",
				Name:       "h4 a",
				Price:      ".special-price",
				AltPrice:   ".regular-price",
				Image:      "img",
				Link:       "h4 a",
				ImageAttrs: defaultImageAttrs,
			},
		},
		{
			Name:      "UltraTech",
			Logo:      "https://www.ultratech.com.bd/image/catalog/logo.png",
			SearchURL: "https://www.ultratech.com.bd/index.php?route=product/search&search=%s&page=%d",
			Selectors: Selectors{
				Item:       ".product-layout",
				Name:       ".name",
				Price:      ".price-new",
				Image:      ".product-img img",
				Link:       ".product-img a",
				ImageAttrs: defaultImageAttrs,
			},
		},
		{
			Name:      "PotakaIT",
			Logo:      "https://www.potakait.com/image/catalog/logo.png",
			SearchURL: "https://www.potakait.com/index.php?route=product/search&search=%s&page=%d",
			Selectors: Selectors{
				Item:       ".product-item",
				Name:       ".title a",
				Price:      ".price:not(.old)",
				Image:      ".product-img img",
				Link:       ".title a",
				ImageAttrs: defaultImageAttrs,
			},
		},
		{
			Name:      "Ryans",
			Logo:      "https://www.ryans.com/wp-content/themes/ryans/img/logo.png",
			SearchURL: "https://www.ryans.com/search?q=%s&page=%d",
			Dynamic:   true,
			Delay:     time.Second,
			Selectors: Selectors{
				Item:       ".category-single-product",
				Name:       ".card-body .card-text a",
				Price:      ".pr-text",
				Image:      ".image-box img",
				Link:       ".image-box a",
				ImageAttrs: defaultImageAttrs,
			},
		},
		{
			Name:      "Binary",
			Logo:      "https://www.binarylogic.com.bd/images/logo.png",
			SearchURL: "https://www.binarylogic.com.bd/search/%s?page=%d",
			Dynamic:   true,
			Delay:     500 * time.Millisecond,
			Selectors: Selectors{
				Item:       ".single_product",
				Name:       ".p-item-name",
				Price:      ".current_price",
				Image:      ".p-item-img img",
				Link:       ".p-item-img a",
				ImageAttrs: defaultImageAttrs,
			},
		},
	}
}

// Options carries the transport knobs shared by all adapters.
type Options struct {
	UserAgent      string
	RequestTimeout time.Duration
	// SettleDelay is how long dynamic adapters wait after navigation
	// before snapshotting the DOM.
	SettleDelay time.Duration
}

// Build constructs one adapter per config.
func Build(configs []Config, opts Options) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Dynamic {
			adapters = append(adapters, NewDynamicAdapter(cfg, opts))
			continue
		}
		a, err := NewStaticAdapter(cfg, opts)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
