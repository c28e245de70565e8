package join

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	logx "github.com/ansa1019/tool/pkg/logx"
)

// stepTimeout bounds each single automation step, like the original
// driver-level wait.
const stepTimeout = 30 * time.Second

// Teams pre-join surface selectors. The client is driven in its zh-TW
// locale, so the button labels are the localized strings.
const (
	selJoinFromBrowser = `//button[@aria-label="從這個瀏覽器加入會議"]`
	selDisplayName     = `//input[@data-tid="prejoin-display-name-input"]`
	selNoAudio         = `//input[@type="radio" and @value="3"]`
	selJoinNow         = `//button[@aria-label="立即加入"]`
)

// ChromeDriver runs the handshake in a dedicated Chrome session via the
// DevTools protocol. Media prompts are auto-granted and OS notification
// popups suppressed so the pre-join surface is never blocked by a dialog.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	ctx         context.Context
}

// NewChromeFactory returns a Factory producing ChromeDriver sessions.
func NewChromeFactory(log logx.Logger) Factory {
	return func(ctx context.Context) (Driver, error) {
		return newChromeDriver(ctx, log)
	}
}

func newChromeDriver(ctx context.Context, log logx.Logger) (*ChromeDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("start-maximized", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Spawn the browser eagerly so acquisition failures surface here, not
	// in the middle of a step.
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	log.Debug("chrome session started")
	return &ChromeDriver{allocCancel: allocCancel, ctxCancel: ctxCancel, ctx: browserCtx}, nil
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(d.ctx, stepTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(stepCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (d *ChromeDriver) Open(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) ClickJoinFromBrowser(ctx context.Context) error {
	return d.run(ctx,
		chromedp.WaitVisible(selJoinFromBrowser, chromedp.BySearch),
		chromedp.Click(selJoinFromBrowser, chromedp.BySearch),
	)
}

func (d *ChromeDriver) FillDisplayName(ctx context.Context, name string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selDisplayName, chromedp.BySearch),
		chromedp.Clear(selDisplayName, chromedp.BySearch),
		chromedp.SendKeys(selDisplayName, name, chromedp.BySearch),
	)
}

func (d *ChromeDriver) SelectNoAudio(ctx context.Context) error {
	return d.run(ctx,
		chromedp.WaitVisible(selNoAudio, chromedp.BySearch),
		chromedp.Click(selNoAudio, chromedp.BySearch),
	)
}

func (d *ChromeDriver) ClickJoinNow(ctx context.Context) error {
	return d.run(ctx,
		chromedp.WaitVisible(selJoinNow, chromedp.BySearch),
		chromedp.Click(selJoinNow, chromedp.BySearch),
	)
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (d *ChromeDriver) Close() error {
	if d.ctxCancel != nil {
		d.ctxCancel()
		d.ctxCancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	return nil
}
