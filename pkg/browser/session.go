package browser

import (
	"context"
	"fmt"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
)

const connectProbeTimeout = 10 * time.Second

// Session owns the connection to the already-authenticated browser. It is
// acquired once per run and must be released with Close even when the run
// terminates early.
type Session struct {
	page    *chromedpPage
	cancels []context.CancelFunc
	logger  logger.Logger
}

// Connect attaches to the browser described by cfg. The remote debugging
// endpoint is preferred; launching a fresh instance is a fallback that only
// happens when cfg.AllowLaunch is set (a fresh instance carries no login
// session, so it is mostly useful against fixtures). The session inherits
// ctx: cancelling the run tears down every in-flight page operation.
func Connect(ctx context.Context, cfg *config.BrowserConfig) (*Session, error) {
	log := logger.GetLogger()

	if cfg.DebuggingURL != "" {
		sess, err := connectRemote(ctx, cfg, log)
		if err == nil {
			return sess, nil
		}
		log.WithError(err).WithField("url", cfg.DebuggingURL).Warn("CDP endpoint unreachable")
		if !cfg.AllowLaunch {
			return nil, errors.Wrap(errors.KindSessionInvalid, err,
				"cannot connect to browser at %s", cfg.DebuggingURL)
		}
	}

	if cfg.AllowLaunch {
		return launch(ctx, cfg, log)
	}

	return nil, errors.New(errors.KindSessionInvalid, "no browser endpoint configured and launching is disabled")
}

func connectRemote(ctx context.Context, cfg *config.BrowserConfig, log logger.Logger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cfg.DebuggingURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The connection is lazy; probe it before handing the session out.
	probeCtx, probeCancel := context.WithTimeout(tabCtx, connectProbeTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1", nil)); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("probing CDP endpoint: %w", err)
	}

	log.WithField("url", cfg.DebuggingURL).Info("Attached to running browser")

	return &Session{
		page:    &chromedpPage{ctx: tabCtx, timeout: cfg.PageTimeout},
		cancels: []context.CancelFunc{tabCancel, allocCancel},
		logger:  log,
	}, nil
}

func launch(ctx context.Context, cfg *config.BrowserConfig, log logger.Logger) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	probeCtx, probeCancel := context.WithTimeout(tabCtx, connectProbeTimeout)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1", nil)); err != nil {
		tabCancel()
		allocCancel()
		return nil, errors.Wrap(errors.KindSessionInvalid, err, "failed to launch browser")
	}

	log.Info("Launched fresh browser instance")

	return &Session{
		page:    &chromedpPage{ctx: tabCtx, timeout: cfg.PageTimeout},
		cancels: []context.CancelFunc{tabCancel, allocCancel},
		logger:  log,
	}, nil
}

// Page returns the shared page capability
func (s *Session) Page() Page {
	return s.page
}

// Close releases the browser connection. Safe to call once the run is over
// regardless of how it ended.
func (s *Session) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.logger.Debug("Browser session released")
	return nil
}

// chromedpPage implements Page against a chromedp tab context. Each call is
// bounded by the configured page timeout; run-level cancellation propagates
// through the tab context the session was built from.
type chromedpPage struct {
	ctx     context.Context
	timeout time.Duration
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromedpPage) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Links(ctx context.Context, selector string) ([]string, error) {
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(a => a.getAttribute('href')).filter(Boolean)`,
		selector,
	)
	var hrefs []string
	if err := p.run(ctx, chromedp.Evaluate(js, &hrefs)); err != nil {
		return nil, err
	}
	return hrefs, nil
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, error) {
	js := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.textContent.trim() : ""; })()`,
		selector,
	)
	var text string
	if err := p.run(ctx, chromedp.Evaluate(js, &text)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *chromedpPage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	js := fmt.Sprintf(
		`(() => {
			const el = document.querySelector(%q);
			if (!el || !el.hasAttribute(%q)) { return {found: false, value: ""}; }
			return {found: true, value: el.getAttribute(%q)};
		})()`,
		selector, name, name,
	)
	var result struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	if err := p.run(ctx, chromedp.Evaluate(js, &result)); err != nil {
		return "", false, err
	}
	return result.Value, result.Found, nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromedpPage) ScrollBy(ctx context.Context, pixels int) error {
	js := fmt.Sprintf(`window.scrollBy(0, %d)`, pixels)
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().Do(ctx)
		return err
	}))
	return buf, err
}
