package shops

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bdpricegear/pricegear/models"
	"github.com/gocolly/colly/v2"
)

// PageURL renders the shop's search URL for a query and page number.
func (c Config) PageURL(query string, page int) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return fmt.Sprintf(c.SearchURL, escaped, page)
}

// StaticAdapter fetches search pages with a plain HTTP GET and parses the
// returned markup. The collector is configured once; each FetchPage works
// on a clone so concurrent fetches never share callback state.
type StaticAdapter struct {
	cfg  Config
	base *colly.Collector
}

// NewStaticAdapter builds a collector restricted to the shop's host.
func NewStaticAdapter(cfg Config, opts Options) (*StaticAdapter, error) {
	sample, err := url.Parse(cfg.PageURL("probe", 1))
	if err != nil {
		return nil, fmt.Errorf("shop %s: parse search url: %w", cfg.Name, err)
	}
	if sample.Host == "" {
		return nil, fmt.Errorf("shop %s: search url must include a host", cfg.Name)
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowedDomains(sample.Host),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.RequestTimeout)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &StaticAdapter{cfg: cfg, base: c}, nil
}

// Name implements Adapter.
func (a *StaticAdapter) Name() string { return a.cfg.Name }

// Logo implements Adapter.
func (a *StaticAdapter) Logo() string { return a.cfg.Logo }

// PageDelay returns the shop's politeness-delay override, if any.
func (a *StaticAdapter) PageDelay() time.Duration { return a.cfg.Delay }

// WithTransport swaps the HTTP transport; used by tests to stub responses.
func (a *StaticAdapter) WithTransport(rt http.RoundTripper) {
	a.base.WithTransport(rt)
}

// FetchPage implements Adapter.
func (a *StaticAdapter) FetchPage(ctx context.Context, query string, page int) ([]models.RawItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c := a.base.Clone()
	sel := a.cfg.Selectors

	var (
		items    []models.RawItem
		blocked  bool
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range a.cfg.Headers {
			r.Headers.Set(k, v)
		}
	})
	c.OnHTML(sel.Item, func(e *colly.HTMLElement) {
		items = append(items, extractCard(e.DOM, e.Request.URL, sel))
	})
	if sel.Challenge != "" {
		c.OnHTML(sel.Challenge, func(*colly.HTMLElement) {
			blocked = true
		})
	}
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = Classify(err, status)
	})

	if err := c.Visit(a.cfg.PageURL(query, page)); err != nil && fetchErr == nil {
		fetchErr = Classify(err, 0)
	}

	if blocked {
		return nil, false, ErrBlocked{Shop: a.cfg.Name}
	}
	if fetchErr != nil {
		return nil, false, fetchErr
	}
	return items, len(items) > 0, nil
}
