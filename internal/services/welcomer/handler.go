package welcomer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
)

type CardComposer interface {
	Compose(kind membership.Kind, displayName, avatarURL string) (membership.CardDocument, error)
}

type Assets interface {
	Reserve(memberID string) (membership.Artifact, error)
	Release(a membership.Artifact) error
}

type CardRenderer interface {
	Render(ctx context.Context, doc membership.CardDocument, target membership.Artifact) (membership.Artifact, error)
}

// CardDeliverer sends the artifact and takes over its release.
type CardDeliverer interface {
	Deliver(ctx context.Context, ev membership.Event, art membership.Artifact) error
	ChannelID() string
}

// Handler runs the render-and-deliver pipeline for membership events.
// Failures stop at this boundary: they are logged, counted and recorded,
// never returned to the event source.
type Handler struct {
	Composer  CardComposer
	Assets    Assets
	Renderer  CardRenderer
	Deliverer CardDeliverer
	Store     membership.DeliveryLog
	Clock     membership.Clock
	Log       *zap.Logger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// OnMembershipEvent starts a pipeline run in the background.
func (h *Handler) OnMembershipEvent(ev membership.Event) {
	h.Dispatch(context.Background(), ev)
}

// Dispatch is OnMembershipEvent for callers that carry trace context. The run
// keeps ctx values but not its cancellation. Events arriving after Wait has
// been called are dropped.
func (h *Handler) Dispatch(ctx context.Context, ev membership.Event) {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		mDropped.Inc()
		h.logger().Warn("membership event dropped during shutdown",
			zap.String("member_id", ev.MemberID),
			zap.String("kind", string(ev.Kind)),
		)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer h.wg.Done()
		_ = h.Handle(ctx, ev)
	}()
}

// Wait stops accepting new runs and blocks until every dispatched run has
// finished or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle runs one pipeline synchronously and reports its outcome. The error
// is returned for callers that care (tests, tools); it has already been
// logged and recorded.
func (h *Handler) Handle(ctx context.Context, ev membership.Event) error {
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	mEvents.WithLabelValues(kindLabel(ev.Kind)).Inc()

	ctx, span := otel.Tracer("welcomer").Start(ctx, "welcomer.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.id", ev.MemberID),
		attribute.String("member.kind", string(ev.Kind)),
	)

	log := obs.WithTrace(ctx, h.logger()).With(
		zap.String("member_id", ev.MemberID),
		zap.String("guild_id", ev.GuildID),
		zap.String("kind", string(ev.Kind)),
	)
	log.Debug("membership event")

	start := time.Now()
	var renderDur time.Duration
	err := h.run(ctx, ev, log, &renderDur)

	rec := &membership.Delivery{
		MemberID:     ev.MemberID,
		Kind:         ev.Kind,
		ChannelID:    h.Deliverer.ChannelID(),
		Status:       membership.StatusDelivered,
		RenderMillis: renderDur.Milliseconds(),
		CreatedAt:    h.now(),
	}
	if err != nil {
		stage := membership.StageOf(err)
		rec.Status, rec.Stage, rec.Error = membership.StatusFailed, stage, err.Error()
		mErrors.WithLabelValues(string(stage)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		log.Error("card not delivered", zap.String("stage", string(stage)), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	} else {
		mDelivered.WithLabelValues(string(ev.Kind)).Inc()
		log.Info("membership card posted", zap.Duration("elapsed", time.Since(start)))
	}

	if h.Store != nil {
		if serr := h.Store.Record(ctx, rec); serr != nil {
			log.Warn("record delivery", zap.Error(serr))
		}
	}
	return err
}

func (h *Handler) run(ctx context.Context, ev membership.Event, log *zap.Logger, renderDur *time.Duration) error {
	tr := otel.Tracer("welcomer")

	if strings.TrimSpace(ev.MemberID) == "" {
		return &membership.CompositionError{Err: membership.ErrEmptyMemberID}
	}
	doc, err := h.Composer.Compose(ev.Kind, ev.DisplayName, ev.AvatarURL)
	if err != nil {
		return err
	}

	art, err := h.Assets.Reserve(ev.MemberID)
	if err != nil {
		return err
	}
	// Until the deliverer takes the artifact over, releasing it is ours.
	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		if rerr := h.Assets.Release(art); rerr != nil {
			mReleaseErrors.Inc()
			log.Error("release artifact", zap.Error(rerr))
		}
	}()

	rctx, rspan := tr.Start(ctx, "welcomer.render")
	rstart := time.Now()
	art, err = h.Renderer.Render(rctx, doc, art)
	*renderDur = time.Since(rstart)
	if err != nil {
		rspan.RecordError(err)
	}
	rspan.End()
	if err != nil {
		return err
	}

	dctx, dspan := tr.Start(ctx, "welcomer.deliver")
	defer dspan.End()
	handedOff = true
	if err := h.Deliverer.Deliver(dctx, ev, art); err != nil {
		dspan.RecordError(err)
		return err
	}
	return nil
}

// kindLabel keeps unknown kinds from minting new metric series.
func kindLabel(k membership.Kind) string {
	if !k.Valid() {
		return "invalid"
	}
	return string(k)
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
