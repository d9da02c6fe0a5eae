// Package discord adapts a discordgo session to the membership ports: the
// gateway feeds member join/leave events, REST resolves and posts to the
// target channel.
package discord

import (
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNoToken = errors.New("discord: empty bot token")

type Config struct {
	Token          string
	RequestTimeout time.Duration
}

// NewSession builds a bot session with the intents needed to see member
// changes. The gateway is not opened here.
func NewSession(cfg Config) (*discordgo.Session, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.Client = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	s.StateEnabled = true
	return s, nil
}
