package welcomer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	kafkax "github.com/NordCoder/Welcomer/internal/repository/kafka"
)

// Controller feeds membership events from the bus into the pipeline.
type Controller struct {
	Log     *zap.Logger
	Sub     *kafkax.Consumer
	UC      *Handler
	CDNHost string
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(func(ctx context.Context, _ []byte, m *kafkax.MembershipMessage) error {
		ev, err := EventFromMessage(m, c.CDNHost)
		if err != nil {
			c.Log.Warn("membership message rejected", zap.String("member_id", m.MemberID), zap.Error(err))
			return kafkax.ErrSkip{Err: err}
		}
		c.UC.Dispatch(ctx, ev)
		return nil
	})
	return c.Sub.Consume(ctx, handler)
}

func EventFromMessage(m *kafkax.MembershipMessage, cdnHost string) (membership.Event, error) {
	kind, err := membership.ParseKind(m.Kind)
	if err != nil {
		return membership.Event{}, err
	}
	if m.MemberID == "" {
		return membership.Event{}, fmt.Errorf("member_id: %w", membership.ErrEmptyMemberID)
	}
	avatar := m.AvatarURL
	if avatar == "" {
		avatar = membership.AvatarURL(cdnHost, m.MemberID, m.AvatarHash)
	}
	return membership.Event{
		Kind:        kind,
		MemberID:    m.MemberID,
		GuildID:     m.GuildID,
		DisplayName: m.DisplayName,
		AvatarURL:   avatar,
		At:          m.At,
	}, nil
}
