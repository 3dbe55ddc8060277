package scrape

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

//go:embed extract.js
var extractJS string

// readyJS is true once the player data or the page title is rendered.
const readyJS = `!!window.ytInitialPlayerResponse || !!document.querySelector("h1.ytd-watch-metadata")`

// DefaultUserAgent is sent with every page load.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	// ExecPath overrides the Chrome binary (empty = autodetect)
	ExecPath string

	// Headless runs Chrome without a window
	Headless bool

	// UserAgent overrides DefaultUserAgent
	UserAgent string

	// ReadyTimeout bounds the wait for the player data after navigation
	ReadyTimeout time.Duration
}

// DefaultChromeConfig returns a headless configuration.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless:     true,
		UserAgent:    DefaultUserAgent,
		ReadyTimeout: 20 * time.Second,
	}
}

// ChromeDriver drives a single Chrome process; each Scrape opens its own tab.
type ChromeDriver struct {
	cfg ChromeConfig

	mu            sync.Mutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewChromeDriver creates a driver. The browser starts on Start.
func NewChromeDriver(cfg ChromeConfig) *ChromeDriver {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 20 * time.Second
	}
	return &ChromeDriver{cfg: cfg}
}

// Start launches Chrome. The browser outlives ctx and is stopped by Close.
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("lang", "en-US"),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(d.cfg.UserAgent),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context starts the browser.
	startErr := make(chan error, 1)
	go func() { startErr <- chromedp.Run(browserCtx) }()
	select {
	case err := <-startErr:
		if err != nil {
			cancelBrowser()
			cancelAlloc()
			return err
		}
	case <-ctx.Done():
		cancelBrowser()
		cancelAlloc()
		return ctx.Err()
	}

	d.browserCtx = browserCtx
	d.cancelAlloc = cancelAlloc
	d.cancelBrowser = cancelBrowser
	return nil
}

// Scrape loads url in a new tab and evaluates the extraction script.
func (d *ChromeDriver) Scrape(ctx context.Context, url string) (*PageData, error) {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return nil, ErrNotStarted
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var ready bool
	var page PageData
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Poll(readyJS, &ready, chromedp.WithPollingTimeout(d.cfg.ReadyTimeout)),
		chromedp.Evaluate(extractJS, &page),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, chromedp.ErrPollingTimeout) {
			return nil, fmt.Errorf("page not ready after %v: %w", d.cfg.ReadyTimeout, err)
		}
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	return &page, nil
}

// Close stops the browser.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx == nil {
		return nil
	}
	d.cancelBrowser()
	d.cancelAlloc()
	d.browserCtx = nil
	return nil
}
