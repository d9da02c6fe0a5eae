package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
)

// Sink receives membership events. It must not block the gateway.
type Sink interface {
	OnMembershipEvent(ev membership.Event)
}

// Source translates gateway member add/remove events into membership events.
type Source struct {
	cdnHost string
	sink    Sink
	now     func() time.Time
	log     *zap.Logger
}

func NewSource(cdnHost string, sink Sink, l *zap.Logger) *Source {
	return &Source{
		cdnHost: cdnHost,
		sink:    sink,
		now:     func() time.Time { return time.Now().UTC() },
		log:     obs.Component(l, "discord.source"),
	}
}

// Attach registers the gateway handlers on s and returns a func that
// removes them.
func (src *Source) Attach(s *discordgo.Session) (detach func()) {
	rmAdd := s.AddHandler(src.onAdd)
	rmRemove := s.AddHandler(src.onRemove)
	return func() {
		rmAdd()
		rmRemove()
	}
}

func (src *Source) onAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	src.emit(membership.KindJoin, m.Member)
}

func (src *Source) onRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	src.emit(membership.KindLeave, m.Member)
}

func (src *Source) emit(kind membership.Kind, m *discordgo.Member) {
	ev, ok := src.event(kind, m)
	if !ok {
		src.log.Warn("member event without user", zap.String("kind", string(kind)))
		return
	}
	src.log.Debug("member event", zap.String("kind", string(kind)), zap.String("member_id", ev.MemberID), zap.String("guild_id", ev.GuildID))
	src.sink.OnMembershipEvent(ev)
}

func (src *Source) event(kind membership.Kind, m *discordgo.Member) (membership.Event, bool) {
	if m == nil || m.User == nil {
		return membership.Event{}, false
	}
	return membership.Event{
		Kind:        kind,
		MemberID:    m.User.ID,
		GuildID:     m.GuildID,
		DisplayName: DisplayName(m.User),
		AvatarURL:   membership.AvatarURL(src.cdnHost, m.User.ID, m.User.Avatar),
		At:          src.now(),
	}, true
}

// DisplayName is the user's global name, or the username when none is set.
func DisplayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
