// Package chrome drives a headless Chrome over the DevTools protocol to
// rasterize card documents.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
)

// imagesReady is true once every <img> finished (loaded or broken) and the
// web fonts are in.
const imagesReady = `Array.from(document.images).every(i => i.complete) && document.fonts.status === 'loaded'`

type Config struct {
	ExecPath  string
	NoSandbox bool
}

// Engine starts one browser process per session. Nothing is shared between
// sessions, so a crashed browser only takes its own card down.
type Engine struct {
	cfg Config
	log *zap.Logger
}

func NewEngine(cfg Config, l *zap.Logger) *Engine {
	return &Engine{cfg: cfg, log: obs.Component(l, "chrome")}
}

func (e *Engine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if e.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.cfg.ExecPath))
	}
	if e.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

func (e *Engine) NewSession(ctx context.Context) (membership.Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, e.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(e.log.Sugar().Debugf),
		chromedp.WithErrorf(e.log.Sugar().Warnf),
	)
	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// Session is one browser tab. Its methods are not safe for concurrent use.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      bool
}

func (s *Session) Load(html string) error {
	return chromedp.Run(s.ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitImages polls until the page's images and fonts are loaded. It reports
// false, without error, when timeout expires first.
func (s *Session) WaitImages(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return false, nil
	}
	var ready bool
	err := chromedp.Run(s.ctx, chromedp.Poll(imagesReady, &ready,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(50*time.Millisecond),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ready, nil
}

func (s *Session) SetViewport(width, height int) error {
	return chromedp.Run(s.ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (s *Session) Screenshot() ([]byte, error) {
	var buf []byte
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	return buf, err
}

// Close shuts the browser down. Calling it again is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
