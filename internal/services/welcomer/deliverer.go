package welcomer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
	"github.com/NordCoder/Welcomer/internal/obs/retry"
)

type releaser interface {
	Release(a membership.Artifact) error
}

// BuildMessage derives the notification for ev. Only kind and display name
// influence the text.
func BuildMessage(ev membership.Event, attachmentName string, now time.Time) membership.Message {
	m := membership.Message{
		Title:       "New user joined the server",
		Description: fmt.Sprintf("Welcome to the server, %s!", ev.DisplayName),
		ImageRef:    "attachment://" + attachmentName,
		Color:       membership.ColorJoin,
		Timestamp:   now.UTC(),
	}
	if ev.Kind == membership.KindLeave {
		m.Title = "User left the server"
		m.Description = fmt.Sprintf("Bye, we hope you will come back, %s!", ev.DisplayName)
		m.Color = membership.ColorLeave
	}
	return m
}

type Deliverer struct {
	resolver  membership.ChannelResolver
	channelID string
	assets    releaser
	clock     membership.Clock
	timeout   time.Duration
	policy    retry.Policy
	log       *zap.Logger
}

type DelivererConfig struct {
	ChannelID string
	Timeout   time.Duration
	Retry     retry.Policy
}

func NewDeliverer(resolver membership.ChannelResolver, assets releaser, clock membership.Clock, cfg DelivererConfig, l *zap.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	pol := cfg.Retry
	if pol.Name == "" {
		pol.Name = "delivery"
	}
	log := obs.Component(l, "welcomer.deliverer")
	pol.Retryable = func(err error) bool { return !errors.Is(err, membership.ErrChannelNotFound) }
	pol.OnAttempt = func(i int, err error) {
		log.Warn("send attempt failed", zap.Int("attempt", i+1), zap.Error(err))
	}
	return &Deliverer{
		resolver:  resolver,
		channelID: cfg.ChannelID,
		assets:    assets,
		clock:     clock,
		timeout:   cfg.Timeout,
		policy:    pol,
		log:       log,
	}
}

func (d *Deliverer) ChannelID() string { return d.channelID }

// Deliver posts the card for ev and then releases the artifact, whatever the
// outcome. A release failure is logged and never replaces the send result.
func (d *Deliverer) Deliver(ctx context.Context, ev membership.Event, art membership.Artifact) error {
	log := obs.WithTrace(ctx, d.log).With(
		zap.String("member_id", ev.MemberID),
		zap.String("kind", string(ev.Kind)),
		zap.String("channel_id", d.channelID),
	)
	defer func() {
		if err := d.assets.Release(art); err != nil {
			mReleaseErrors.Inc()
			log.Error("release artifact", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ch, err := d.resolver.Resolve(ctx, d.channelID)
	if err != nil {
		return &membership.DeliveryError{ChannelID: d.channelID, Err: err}
	}

	msg := BuildMessage(ev, art.AttachmentName(), d.clock.Now())
	err = retry.Do(ctx, func(ctx context.Context) error {
		return ch.Send(ctx, msg, art.AttachmentName(), art.Path)
	}, d.policy)
	if err != nil {
		return &membership.DeliveryError{ChannelID: d.channelID, Err: err}
	}

	log.Info("card delivered", zap.String("title", msg.Title), zap.String("attachment", art.AttachmentName()))
	return nil
}
