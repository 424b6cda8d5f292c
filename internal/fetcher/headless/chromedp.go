// Package headless renders product pages in headless Chrome through chromedp.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Config controls the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ProductWait bounds the wait for FetchRequest.WaitSelector and for the
	// image capture. A page that never shows the element is read as is.
	ProductWait time.Duration
	// SettleDelay is only used when the request names no product element.
	SettleDelay time.Duration
}

// Fetcher implements datasheet.Fetcher using chromedp. Each fetch runs in its
// own tab of a shared browser process.
type Fetcher struct {
	cfg         Config
	slots       chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// lazyScrollOffsets are the positions scrolled to so that galleries and
// spec tabs below the fold get loaded.
var lazyScrollOffsets = []int{600, 1200}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg = withDefaults(cfg)
	var slots chan struct{}
	if cfg.MaxParallel > 0 {
		slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       slots,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ProductWait <= 0 {
		cfg.ProductWait = 20 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 1500 * time.Millisecond
	}
	return cfg
}

// Close stops the browser process.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// pageResult collects what the tab actions read back.
type pageResult struct {
	html     string
	finalURL string
	ready    bool
	capture  []byte
}

// Fetch renders the page, waits for the product element when one is named,
// and optionally screenshots the product image element.
func (f *Fetcher) Fetch(ctx context.Context, request datasheet.FetchRequest) (datasheet.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return datasheet.FetchResponse{}, err
	}
	defer f.release()

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	var page pageResult
	if err := chromedp.Run(tabCtx, f.actions(request, &page)...); err != nil {
		return datasheet.FetchResponse{}, fmt.Errorf("chromedp run %s: %w", request.URL, err)
	}

	status, headers, url := doc.result(request.URL, page.finalURL)
	return datasheet.FetchResponse{
		URL:          url,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(page.html),
		Duration:     time.Since(start),
		UsedHeadless: true,
		ProductReady: page.ready,
		Capture:      page.capture,
	}, nil
}

func (f *Fetcher) actions(request datasheet.FetchRequest, out *pageResult) []chromedp.Action {
	actions := []chromedp.Action{
		f.networkSetup(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if request.WaitSelector != "" {
		actions = append(actions, f.waitProduct(request.WaitSelector, &out.ready))
	}
	for _, y := range lazyScrollOffsets {
		actions = append(actions, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil))
	}
	if request.WaitSelector == "" {
		actions = append(actions, chromedp.Sleep(f.cfg.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&out.finalURL),
		chromedp.OuterHTML("html", &out.html, chromedp.ByQuery),
	)
	if request.CaptureSelector != "" {
		actions = append(actions, f.captureElement(request.CaptureSelector, &out.capture))
	}
	return actions
}

// waitProduct waits up to ProductWait for sel to become visible. Running out
// of time is not an error; only the tab's own deadline is.
func (f *Fetcher) waitProduct(sel string, ready *bool) chromedp.Action {
	return f.bounded(func(ctx context.Context) error {
		return chromedp.WaitVisible(sel, chromedp.ByQuery).Do(ctx)
	}, func() { *ready = true })
}

// captureElement screenshots the first visible element matching sel.
func (f *Fetcher) captureElement(sel string, buf *[]byte) chromedp.Action {
	return f.bounded(func(ctx context.Context) error {
		return chromedp.Screenshot(sel, buf, chromedp.NodeVisible, chromedp.ByQuery).Do(ctx)
	}, nil)
}

func (f *Fetcher) bounded(step func(context.Context) error, onSuccess func()) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, f.cfg.ProductWait)
		defer cancel()
		if err := step(stepCtx); err != nil {
			return ctx.Err()
		}
		if onSuccess != nil {
			onSuccess()
		}
		return nil
	})
}

func (f *Fetcher) networkSetup(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	select {
	case f.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.slots == nil {
		return
	}
	<-f.slots
}

// documentResponse remembers the main document's response as seen on the
// DevTools network domain.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range e.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	d.mu.Lock()
	d.status = int(e.Response.Status)
	d.headers = headers
	d.url = e.Response.URL
	d.mu.Unlock()
}

// result falls back to the tab location and then the requested URL when no
// document response was seen.
func (d *documentResponse) result(requestURL, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url := d.status, d.url
	if status == 0 {
		status = http.StatusOK
	}
	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	headers := d.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

func networkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
