package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

// Resolver looks the target channel up in the session state first and falls
// back to REST.
type Resolver struct {
	s *discordgo.Session
}

func NewResolver(s *discordgo.Session) *Resolver {
	return &Resolver{s: s}
}

func (r *Resolver) Resolve(ctx context.Context, channelID string) (membership.Channel, error) {
	if channelID == "" {
		return nil, membership.ErrChannelNotFound
	}
	if r.s.State != nil {
		if ch, err := r.s.State.Channel(channelID); err == nil {
			return &Channel{s: r.s, id: ch.ID}, nil
		}
	}
	ch, err := r.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", membership.ErrChannelNotFound, channelID)
		}
		return nil, err
	}
	return &Channel{s: r.s, id: ch.ID}, nil
}

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
			return true
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return true
		}
	}
	return false
}

type Channel struct {
	s  *discordgo.Session
	id string
}

func (c *Channel) ID() string { return c.id }

// Send posts msg as a single embed with the card file attached under
// attachmentName.
func (c *Channel) Send(ctx context.Context, msg membership.Message, attachmentName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.s.ChannelMessageSendComplex(c.id, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{Embed(msg)},
		Files: []*discordgo.File{{
			Name:        attachmentName,
			ContentType: "image/png",
			Reader:      f,
		}},
	}, discordgo.WithContext(ctx))
	return err
}

func Embed(msg membership.Message) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
		Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339),
		Image:       &discordgo.MessageEmbedImage{URL: msg.ImageRef},
	}
}
