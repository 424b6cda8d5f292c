// Package stealth fetches pages through a rod-driven Chrome with
// anti-detection patches, for sites that block plain headless browsers.
package stealth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

// Config controls the stealth browser.
type Config struct {
	// ChromePath overrides the browser binary; empty lets rod pick one.
	ChromePath string
	// RemoteURL connects to an existing DevTools endpoint instead of launching.
	RemoteURL         string
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ProductWait bounds the wait for the product element and the image
	// capture.
	ProductWait time.Duration
	// SettleDelay is only used when the request names no product element.
	SettleDelay time.Duration
}

var lazyScrollOffsets = []int{600, 1200}

// Fetcher implements datasheet.Fetcher on top of go-rod. The browser is
// started on first use and shared by all fetches.
type Fetcher struct {
	cfg     Config
	logger  *zap.Logger
	limiter chan struct{}

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	closed   bool
}

// New creates a stealth fetcher without starting the browser.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.ProductWait <= 0 {
		cfg.ProductWait = 20 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Fetcher{cfg: cfg, logger: logging.OrNop(logger), limiter: limiter}, nil
}

// Fetch opens a stealth tab, navigates to the URL and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request datasheet.FetchRequest) (datasheet.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return datasheet.FetchResponse{}, err
	}
	defer f.release()

	browser, err := f.ensureBrowser()
	if err != nil {
		return datasheet.FetchResponse{}, err
	}

	start := time.Now()
	page, err := stealth.Page(browser)
	if err != nil {
		return datasheet.FetchResponse{}, fmt.Errorf("stealth: create tab: %w", err)
	}
	defer func() { _ = page.Close() }()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := f.prepare(p, request.Headers); err != nil {
		return datasheet.FetchResponse{}, err
	}

	status := http.StatusOK
	var mu sync.Mutex
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type == proto.NetworkResourceTypeDocument && e.Response != nil {
			mu.Lock()
			status = e.Response.Status
			mu.Unlock()
		}
	})
	go wait()

	if err := p.Navigate(request.URL); err != nil {
		return datasheet.FetchResponse{}, fmt.Errorf("stealth: navigate %s: %w", request.URL, err)
	}
	if err := p.WaitLoad(); err != nil {
		f.logger.Warn("stealth: wait load", zap.String("url", request.URL), zap.Error(err))
	}
	ready := false
	if request.WaitSelector != "" {
		ready = f.waitProduct(p, request.WaitSelector)
	}
	for _, y := range lazyScrollOffsets {
		if _, err := p.Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
			f.logger.Debug("stealth: scroll", zap.Error(err))
		}
	}
	if request.WaitSelector == "" {
		select {
		case <-navCtx.Done():
			return datasheet.FetchResponse{}, fmt.Errorf("stealth: settle canceled: %w", navCtx.Err())
		case <-time.After(f.cfg.SettleDelay):
		}
	}
	if err := navCtx.Err(); err != nil {
		return datasheet.FetchResponse{}, fmt.Errorf("stealth: %s: %w", request.URL, err)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return datasheet.FetchResponse{}, fmt.Errorf("stealth: read DOM: %w", err)
	}
	finalURL := request.URL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	var capture []byte
	if request.CaptureSelector != "" {
		capture = f.captureElement(p, request.CaptureSelector)
	}

	mu.Lock()
	code := status
	mu.Unlock()
	return datasheet.FetchResponse{
		URL:          finalURL,
		StatusCode:   code,
		Headers:      http.Header{},
		Body:         []byte(res.Value.Str()),
		Duration:     time.Since(start),
		UsedHeadless: true,
		ProductReady: ready,
		Capture:      capture,
	}, nil
}

// waitProduct reports whether sel became visible within ProductWait.
func (f *Fetcher) waitProduct(p *rod.Page, sel string) bool {
	el, err := p.Timeout(f.cfg.ProductWait).Element(sel)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		f.logger.Debug("stealth: product element not visible", zap.String("selector", sel), zap.Error(err))
		return false
	}
	return true
}

// captureElement screenshots the first element matching sel as PNG. A miss
// yields nil and the caller falls back to downloading the image.
func (f *Fetcher) captureElement(p *rod.Page, sel string) []byte {
	el, err := p.Timeout(f.cfg.ProductWait).Element(sel)
	if err != nil {
		f.logger.Debug("stealth: capture element missing", zap.String("selector", sel), zap.Error(err))
		return nil
	}
	shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		f.logger.Debug("stealth: capture failed", zap.String("selector", sel), zap.Error(err))
		return nil
	}
	return shot
}

func (f *Fetcher) prepare(p *rod.Page, headers http.Header) error {
	if f.cfg.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.cfg.UserAgent}); err != nil {
			return fmt.Errorf("stealth: set user agent: %w", err)
		}
	}
	if len(headers) > 0 {
		dict := make([]string, 0, len(headers)*2)
		for key := range headers {
			dict = append(dict, key, headers.Get(key))
		}
		if _, err := p.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("stealth: set extra headers: %w", err)
		}
	}
	return nil
}

func (f *Fetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("stealth: fetcher closed")
	}
	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL != "" {
		resolved, err := launcher.ResolveURL(wsURL)
		if err != nil {
			return nil, fmt.Errorf("stealth: resolve remote: %w", err)
		}
		wsURL = resolved
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage").
			Set("no-sandbox")
		if f.cfg.ChromePath != "" {
			l = l.Bin(f.cfg.ChromePath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("stealth: launch: %w", err)
		}
		wsURL = u
		f.launcher = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		f.killLauncher()
		return nil, fmt.Errorf("stealth: connect: %w", err)
	}
	f.browser = b
	f.logger.Info("stealth browser started", zap.Bool("remote", f.cfg.RemoteURL != ""))
	return b, nil
}

// Close shuts the browser down. Later fetches fail.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	f.killLauncher()
	if err != nil {
		return fmt.Errorf("stealth: close browser: %w", err)
	}
	return nil
}

func (f *Fetcher) killLauncher() {
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stealth slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}
