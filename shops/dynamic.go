package shops

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bdpricegear/pricegear/models"
	"github.com/chromedp/chromedp"
)

// DynamicAdapter drives a headless browser for shops that render their
// listings client-side. During a crawl the orchestrator opens one browser
// session for the whole run and each FetchPage gets its own tab; outside a
// session (the comparison fan-out) every fetch launches a short-lived
// browser of its own.
type DynamicAdapter struct {
	cfg  Config
	opts Options

	mu      sync.Mutex
	session *browserSession
}

// NewDynamicAdapter builds a browser-backed adapter for cfg.
func NewDynamicAdapter(cfg Config, opts Options) *DynamicAdapter {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	return &DynamicAdapter{cfg: cfg, opts: opts}
}

// Name implements Adapter.
func (a *DynamicAdapter) Name() string { return a.cfg.Name }

// Logo implements Adapter.
func (a *DynamicAdapter) Logo() string { return a.cfg.Logo }

// PageDelay returns the shop's politeness-delay override, if any.
func (a *DynamicAdapter) PageDelay() time.Duration { return a.cfg.Delay }

type browserSession struct {
	owner  *DynamicAdapter
	ctx    context.Context
	cancel func()

	closeOnce sync.Once
}

// Close implements Session. Safe to call more than once.
func (s *browserSession) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.owner.mu.Lock()
		if s.owner.session == s {
			s.owner.session = nil
		}
		s.owner.mu.Unlock()
	})
}

// StartSession implements SessionStarter. The browser lives until Close;
// cancelling ctx also tears it down, so timeouts cannot leak a browser.
func (a *DynamicAdapter) StartSession(ctx context.Context) (Session, error) {
	browserCtx, cancel, err := a.launch(ctx)
	if err != nil {
		return nil, err
	}
	s := &browserSession{owner: a, ctx: browserCtx, cancel: cancel}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s, nil
}

func (a *DynamicAdapter) launch(ctx context.Context) (context.Context, func(), error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(a.opts.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}
	// Start the browser eagerly so launch failures surface here instead of
	// on the first page fetch.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, Classify(err, 0)
	}
	return browserCtx, cancel, nil
}

// newTab opens a tab in the session browser. The tab dies with whichever
// ends first: the session or the caller's context; the session context
// alone knows nothing about per-call deadlines.
func newTab(sess *browserSession, ctx context.Context) (context.Context, func()) {
	tab, tabCancel := chromedp.NewContext(sess.ctx)
	stop := context.AfterFunc(ctx, tabCancel)
	return tab, func() {
		stop()
		tabCancel()
	}
}

// FetchPage implements Adapter. Navigation waits a fixed settle delay and
// scrolls to the bottom to trigger lazy loading before snapshotting the DOM.
func (a *DynamicAdapter) FetchPage(ctx context.Context, query string, page int) ([]models.RawItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()

	var (
		tabCtx  context.Context
		cleanup func()
	)
	if sess != nil {
		tabCtx, cleanup = newTab(sess, ctx)
	} else {
		browserCtx, cancel, err := a.launch(ctx)
		if err != nil {
			return nil, false, err
		}
		tabCtx, cleanup = browserCtx, cancel
	}
	defer cleanup()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, a.opts.RequestTimeout)
	defer timeoutCancel()

	pageURL := a.cfg.PageURL(query, page)
	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(a.opts.SettleDelay),
		chromedp.Evaluate(`window.scrollBy(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(a.opts.SettleDelay/3),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, false, Classify(err, 0)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, ErrParse{Err: err}
	}
	if isChallengePage(doc, a.cfg.Selectors) {
		return nil, false, ErrBlocked{Shop: a.cfg.Name}
	}

	parsed, _ := url.Parse(pageURL)
	items := extractItems(doc, parsed, a.cfg.Selectors)
	return items, len(items) > 0, nil
}
