package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// userAgents rotate across instances so pooled sessions don't all present
// identically.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
}

// BrowserInstance is one pooled browsing session: a browser, its isolated
// context, and one open page.
type BrowserInstance struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
	ID      string
}

// PoolConfig bounds the pool and configures its browsers.
type PoolConfig struct {
	MaxInstances   int           // default 5
	Timeout        time.Duration // per-operation default, default 30s
	Headless       bool
	ViewportWidth  int // default 1920
	ViewportHeight int // default 1080
	// RemoteURL connects to a Playwright server instead of launching
	// locally; http(s) URLs are rewritten to their ws(s) form.
	RemoteURL string
}

func (c *PoolConfig) applyDefaults() {
	if c.MaxInstances == 0 {
		c.MaxInstances = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ViewportWidth == 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = 1080
	}
}

// Pool recycles browser instances up to a cap. Acquire blocks when every
// instance is out; Release returns one or discards it if the pool closed.
type Pool struct {
	config PoolConfig
	idle   chan *BrowserInstance
	pw     *playwright.Playwright

	mu      sync.Mutex
	closed  bool
	created int
	nextUA  int
}

// NewPool starts the Playwright runtime (installing browsers locally when
// no remote server is configured) and returns an empty pool; instances
// launch lazily on first Acquire.
func NewPool(config PoolConfig) (*Pool, error) {
	config.applyDefaults()

	if strings.TrimSpace(config.RemoteURL) == "" {
		// A failed install is not returned: the pool still constructs,
		// without a runtime, and every Acquire then fails with
		// "playwright not initialized".
		if err := playwright.Install(&playwright.RunOptions{Verbose: false}); err != nil {
			return &Pool{config: config, idle: make(chan *BrowserInstance, config.MaxInstances)}, nil
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Pool{
		config: config,
		idle:   make(chan *BrowserInstance, config.MaxInstances),
		pw:     pw,
	}, nil
}

// Acquire returns an idle instance, launches a new one under the cap, or
// blocks until one is released or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*BrowserInstance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("pool is closed")
	}
	select {
	case instance := <-p.idle:
		p.mu.Unlock()
		return instance, nil
	default:
	}
	if p.created < p.config.MaxInstances {
		p.created++
		p.mu.Unlock()
		instance, err := p.launch()
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, err
		}
		return instance, nil
	}
	p.mu.Unlock()

	select {
	case instance := <-p.idle:
		return instance, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release puts instance back into the idle set, or tears it down when the
// pool is closed or full.
func (p *Pool) Release(instance *BrowserInstance) {
	if instance == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		instance.teardown()
		p.created--
		return
	}
	select {
	case p.idle <- instance:
	default:
		instance.teardown()
		p.created--
	}
}

// Close tears down every idle instance and stops the Playwright runtime.
// Instances still checked out are torn down as they release.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	close(p.idle)
	for instance := range p.idle {
		instance.teardown()
	}
	p.created = 0

	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("stop playwright: %w", err)
		}
	}
	return nil
}

// launch creates one instance: a browser (local or remote), an isolated
// context with a rotated user agent, and one page with the default
// timeout applied.
func (p *Pool) launch() (*BrowserInstance, error) {
	if p.pw == nil {
		return nil, fmt.Errorf("playwright not initialized")
	}

	var browser playwright.Browser
	var err error
	if remote := wsURL(p.config.RemoteURL); remote != "" {
		browser, err = p.pw.Chromium.Connect(remote)
		if err != nil {
			return nil, fmt.Errorf("connect to browser: %w", err)
		}
	} else {
		browser, err = p.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(p.config.Headless),
			Timeout:  playwright.Float(float64(p.config.Timeout.Milliseconds())),
		})
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(p.rotateUserAgent()),
		Viewport: &playwright.Size{
			Width:  p.config.ViewportWidth,
			Height: p.config.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(p.config.Timeout.Milliseconds()))

	return &BrowserInstance{
		Browser: browser,
		Context: browserCtx,
		Page:    page,
		ID:      fmt.Sprintf("browser-%d", time.Now().UnixNano()),
	}, nil
}

func (p *Pool) rotateUserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := userAgents[p.nextUA%len(userAgents)]
	p.nextUA++
	return ua
}

// wsURL rewrites http(s) endpoints to their websocket form; ws(s) URLs
// pass through.
func wsURL(raw string) string {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return ""
	case strings.HasPrefix(value, "http://"):
		return "ws://" + strings.TrimPrefix(value, "http://")
	case strings.HasPrefix(value, "https://"):
		return "wss://" + strings.TrimPrefix(value, "https://")
	default:
		return value
	}
}

func (instance *BrowserInstance) teardown() {
	if instance.Page != nil {
		instance.Page.Close()
	}
	if instance.Context != nil {
		instance.Context.Close()
	}
	if instance.Browser != nil {
		instance.Browser.Close()
	}
}

// SetCookie adds cookies to the instance's context.
func (instance *BrowserInstance) SetCookie(cookies ...playwright.OptionalCookie) error {
	return instance.Context.AddCookies(cookies)
}

// GetCookies returns the context's cookies.
func (instance *BrowserInstance) GetCookies() ([]playwright.Cookie, error) {
	return instance.Context.Cookies()
}

// ClearCookies drops the context's cookies.
func (instance *BrowserInstance) ClearCookies() error {
	return instance.Context.ClearCookies()
}

// SetViewport resizes the page.
func (instance *BrowserInstance) SetViewport(width, height int) error {
	return instance.Page.SetViewportSize(width, height)
}

// PoolStats snapshots the pool for diagnostics.
type PoolStats struct {
	MaxInstances       int
	AvailableInstances int
	IsClosed           bool
}

// GetStats reports the pool's current shape.
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		MaxInstances:       p.config.MaxInstances,
		AvailableInstances: len(p.idle),
		IsClosed:           p.closed,
	}
}
