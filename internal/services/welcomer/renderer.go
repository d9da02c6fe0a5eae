package welcomer

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
)

type SettleMode string

const (
	// SettleImages waits for every image and font to finish loading, capped
	// by the settle delay.
	SettleImages SettleMode = "images"
	// SettleFixed always sleeps for the settle delay.
	SettleFixed SettleMode = "fixed"
)

type RenderOptions struct {
	SettleMode    SettleMode
	SettleDelay   time.Duration
	Timeout       time.Duration
	MaxConcurrent int64
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.SettleMode == "" {
		o.SettleMode = SettleImages
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 1
	}
	return o
}

// Renderer rasterizes card documents through an off-process engine.
// The number of simultaneously open engine sessions is bounded; callers
// beyond the bound wait their turn.
type Renderer struct {
	engine membership.Engine
	opts   RenderOptions
	sem    *semaphore.Weighted
	sleep  func(ctx context.Context, d time.Duration) error
	log    *zap.Logger
}

func NewRenderer(engine membership.Engine, opts RenderOptions, l *zap.Logger) *Renderer {
	opts = opts.withDefaults()
	return &Renderer{
		engine: engine,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		sleep:  sleepCtx,
		log:    obs.Component(l, "welcomer.renderer"),
	}
}

func (r *Renderer) WithLogger(l *zap.Logger) *Renderer {
	if l == nil {
		return r
	}
	cp := *r
	cp.log = obs.Component(l, "welcomer.renderer")
	return &cp
}

// Render draws doc and writes the PNG to target.Path. The engine session is
// closed on every path. A file left half-written on failure is the caller's
// to release, like any reserved artifact. The render timeout also covers
// time spent queued for a session.
func (r *Renderer) Render(ctx context.Context, doc membership.CardDocument, target membership.Artifact) (membership.Artifact, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return target, &membership.RenderError{Step: "queue", Err: err}
	}
	defer r.sem.Release(1)

	mRendersInFlight.Inc()
	defer mRendersInFlight.Dec()

	log := obs.WithTrace(ctx, r.log).With(zap.String("member_id", target.MemberID), zap.String("path", target.Path))

	sess, err := r.engine.NewSession(ctx)
	if err != nil {
		return target, &membership.RenderError{Step: "launch", Err: err}
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("close render session", zap.Error(cerr))
		}
	}()

	if err := sess.Load(doc.HTML); err != nil {
		return target, &membership.RenderError{Step: "load", Err: err}
	}

	if err := r.settle(ctx, sess, log); err != nil {
		return target, &membership.RenderError{Step: "settle", Err: err}
	}

	width, height := doc.Width, doc.Height
	if width <= 0 || height <= 0 {
		width, height = membership.CardWidth, membership.CardHeight
	}
	if err := sess.SetViewport(width, height); err != nil {
		return target, &membership.RenderError{Step: "viewport", Err: err}
	}

	img, err := sess.Screenshot()
	if err != nil {
		return target, &membership.RenderError{Step: "capture", Err: err}
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return target, &membership.RenderError{Step: "capture", Err: fmt.Errorf("screenshot is not a png: %w", err)}
	}

	if err := os.WriteFile(target.Path, img, 0o644); err != nil {
		return target, &membership.RenderError{Step: "write", Err: err}
	}

	target.Width, target.Height = cfg.Width, cfg.Height
	mRenderDur.Observe(time.Since(start).Seconds())
	log.Debug("card rendered",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("bytes", len(img)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return target, nil
}

// settle gives externally hosted assets (the avatar, fonts) time to load.
// In images mode the delay is only an upper bound; a capture taken when it
// expires may still miss the avatar on a slow network.
func (r *Renderer) settle(ctx context.Context, sess membership.Session, log *zap.Logger) error {
	if r.opts.SettleMode == SettleFixed {
		return r.sleep(ctx, r.opts.SettleDelay)
	}

	loaded, err := sess.WaitImages(r.opts.SettleDelay)
	if err != nil {
		return err
	}
	if !loaded {
		mSettleFallback.Inc()
		log.Warn("images still loading after settle cap; capturing anyway", zap.Duration("cap", r.opts.SettleDelay))
	}
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
