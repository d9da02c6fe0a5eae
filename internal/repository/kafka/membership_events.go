package kafka

import (
	"context"
	"time"
)

// MembershipMessage is the wire form of a membership change on the bus.
type MembershipMessage struct {
	Kind        string    `json:"kind"`
	MemberID    string    `json:"member_id"`
	GuildID     string    `json:"guild_id,omitempty"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	AvatarHash  string    `json:"avatar_hash,omitempty"`
	At          time.Time `json:"at,omitempty"`
}

type MembershipEventsKafka struct {
	p *Producer
}

func NewMembershipEventsKafka(p *Producer) *MembershipEventsKafka {
	return &MembershipEventsKafka{p: p}
}

// Publish keys by member so one member's events stay ordered on a partition.
func (e *MembershipEventsKafka) Publish(ctx context.Context, m MembershipMessage) error {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	return e.p.PublishJSON(ctx, []byte(m.MemberID), m)
}
