package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// Config controls how browser processes are launched.
type Config struct {
	Headless bool
	// ExecPath overrides the Chrome binary chromedp would discover.
	ExecPath string
	// NoSandbox is required when running as root inside containers.
	NoSandbox    bool
	StartTimeout time.Duration
}

// Launcher opens Sessions. It is safe for concurrent use.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

func (l *Launcher) allocatorOptions(id enrich.Identity) []chromedp.ExecAllocatorOption {
	headless := any(false)
	if l.cfg.Headless {
		headless = "new"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", l.cfg.NoSandbox),
		chromedp.Flag("disable-setuid-sandbox", l.cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-accelerated-2d-canvas", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("incognito", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", id.Locale),
		chromedp.UserAgent(id.UserAgent),
		chromedp.WindowSize(int(id.Viewport.Width), int(id.Viewport.Height)),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	return opts
}

// Open launches a browser presenting identity. Errors wrap enrich.ErrSessionInit.
func (l *Launcher) Open(ctx context.Context, identity enrich.Identity) (enrich.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(identity)...)
	s, err := l.start(ctx, allocCtx, allocCancel, identity)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// start connects a browser through the allocator in allocCtx and waits for it
// to come up within the start timeout.
func (l *Launcher) start(ctx, allocCtx context.Context, allocCancel context.CancelFunc, identity enrich.Identity) (*Session, error) {
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		identity: identity,
		ctx:      browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	// The first Run starts the browser; it must use the browser context
	// itself, so the startup bound is enforced from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(l.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			s.cancel()
			return nil, fmt.Errorf("%w: start browser: %v", enrich.ErrSessionInit, err)
		}
	case <-timer.C:
		s.cancel()
		<-started
		return nil, fmt.Errorf("%w: browser did not start within %s", enrich.ErrSessionInit, l.cfg.StartTimeout)
	case <-ctx.Done():
		s.cancel()
		<-started
		return nil, fmt.Errorf("%w: %w", enrich.ErrSessionInit, ctx.Err())
	}
	l.logger.Debug("browser session started",
		zap.String("platform", identity.Platform),
		zap.String("geo", identity.Geolocation.Label),
		zap.Int64("width", identity.Viewport.Width))
	return s, nil
}

// Session is one browser process. Pages opened from it share its identity.
type Session struct {
	identity enrich.Identity
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

// Identity returns the identity the session presents.
func (s *Session) Identity() enrich.Identity {
	return s.identity
}

// NewPage opens a tab with the identity overrides installed.
func (s *Session) NewPage(ctx context.Context) (enrich.Page, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("session closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	// The tab's first Run attaches the target and starts its event loop on
	// the context it is given, so it must be the tab's own context.
	if err := attach(ctx, tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	p := &Page{ctx: tabCtx, cancel: tabCancel}
	if err := p.run(ctx, identityOverrides(s.identity)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("install identity overrides: %w", err)
	}
	return p, nil
}

func attach(ctx, tabCtx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the browser process. Later calls are no-ops.
func (s *Session) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// identityOverrides applies the identity in a fixed order: network and user
// agent first, then locale, timezone, viewport, geolocation and its permission,
// and finally the navigator script that must be registered before any
// navigation.
func identityOverrides(id enrich.Identity) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		ua := emulation.SetUserAgentOverride(id.UserAgent).
			WithAcceptLanguage(acceptLanguage(id.Languages)).
			WithPlatform(id.Platform)
		if err := ua.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(id.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		if err := emulation.SetTimezoneOverride(id.Timezone).Do(ctx); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(id.Viewport.Width, id.Viewport.Height, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		geo := emulation.SetGeolocationOverride().
			WithLatitude(id.Geolocation.Latitude).
			WithLongitude(id.Geolocation.Longitude).
			WithAccuracy(id.Geolocation.Accuracy)
		if err := geo.Do(ctx); err != nil {
			return fmt.Errorf("set geolocation: %w", err)
		}
		grant := browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation})
		if err := grant.Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)); err != nil {
			return fmt.Errorf("grant geolocation: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(navigatorScript(id)).Do(ctx); err != nil {
			return fmt.Errorf("add navigator script: %w", err)
		}
		return nil
	})
}

var errPageClosed = errors.New("page closed")
