package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
)

func TestNewSession(t *testing.T) {
	_, err := NewSession(Config{})
	assert.ErrorIs(t, err, ErrNoToken)

	s, err := NewSession(Config{Token: "abc", RequestTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Bot abc", s.Token)
	assert.Equal(t, 3*time.Second, s.Client.Timeout)
	assert.NotZero(t, s.Identify.Intents&discordgo.IntentsGuildMembers)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann", DisplayName(&discordgo.User{Username: "ann_42", GlobalName: "Ann"}))
	assert.Equal(t, "ann_42", DisplayName(&discordgo.User{Username: "ann_42"}))
}

func TestEmbed(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Embed(membership.Message{
		Title:       "New user joined the server",
		Description: "Welcome to the server, Ann!",
		ImageRef:    "attachment://123.png",
		Color:       membership.ColorJoin,
		Timestamp:   ts,
	})
	assert.Equal(t, "New user joined the server", e.Title)
	assert.Equal(t, "Welcome to the server, Ann!", e.Description)
	assert.Equal(t, 0x00FF00, e.Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", e.Timestamp)
	assert.Equal(t, "attachment://123.png", e.Image.URL)
}

type sinkFunc func(membership.Event)

func (f sinkFunc) OnMembershipEvent(ev membership.Event) { f(ev) }

func TestSource_TranslatesMemberEvents(t *testing.T) {
	var got []membership.Event
	src := NewSource("cdn.test", sinkFunc(func(ev membership.Event) { got = append(got, ev) }), zap.NewNop())
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return at }

	member := &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "123", Username: "ann", GlobalName: "Ann", Avatar: "abc"}}
	src.onAdd(nil, &discordgo.GuildMemberAdd{Member: member})
	src.onRemove(nil, &discordgo.GuildMemberRemove{Member: member})
	src.onAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1"}})

	require.Len(t, got, 2)
	assert.Equal(t, membership.Event{
		Kind:        membership.KindJoin,
		MemberID:    "123",
		GuildID:     "g1",
		DisplayName: "Ann",
		AvatarURL:   "https://cdn.test/avatars/123/abc.png?size=512",
		At:          at,
	}, got[0])
	assert.Equal(t, membership.KindLeave, got[1].Kind)
}

// fakeAPI serves the channel endpoints discordgo talks to.
type fakeAPI struct {
	mu       sync.Mutex
	payloads []discordgo.MessageSend
	files    map[string][]byte
}

func startAPI(t *testing.T, api *fakeAPI) {
	t.Helper()
	api.files = map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		w.Header().Set("Content-Type", "application/json")
		// /channels/{id}[/messages]
		if len(parts) < 2 || parts[0] != "channels" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := parts[1]
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "Unknown Channel", "code": 10003}`)
			return
		}
		if id == "broken" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message": "bad", "code": 50035}`)
			return
		}
		if len(parts) == 2 {
			_, _ = io.WriteString(w, `{"id": "`+id+`", "type": 0}`)
			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		defer api.mu.Unlock()
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			body, _ := io.ReadAll(p)
			if p.FormName() == "payload_json" {
				var m discordgo.MessageSend
				_ = json.Unmarshal(body, &m)
				api.payloads = append(api.payloads, m)
				continue
			}
			api.files[p.FileName()] = body
		}
		_, _ = io.WriteString(w, `{"id": "m1", "channel_id": "`+id+`"}`)
	}))
	prev := discordgo.EndpointChannels
	discordgo.EndpointChannels = srv.URL + "/channels/"
	t.Cleanup(func() {
		discordgo.EndpointChannels = prev
		srv.Close()
	})
}

func newTestSession(t *testing.T) *discordgo.Session {
	t.Helper()
	s, err := NewSession(Config{Token: "t"})
	require.NoError(t, err)
	s.MaxRestRetries = 0
	return s
}

func TestResolver(t *testing.T) {
	startAPI(t, &fakeAPI{})
	s := newTestSession(t)
	r := NewResolver(s)
	ctx := context.Background()

	ch, err := r.Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", ch.ID())

	_, err = r.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, membership.ErrChannelNotFound)

	_, err = r.Resolve(ctx, "")
	assert.ErrorIs(t, err, membership.ErrChannelNotFound)

	_, err = r.Resolve(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, membership.ErrChannelNotFound)
}

func TestResolver_FromState(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.State.GuildAdd(&discordgo.Guild{ID: "g1"}))
	require.NoError(t, s.State.ChannelAdd(&discordgo.Channel{ID: "cached", GuildID: "g1"}))

	// No API server: a REST call would fail.
	prev := discordgo.EndpointChannels
	discordgo.EndpointChannels = "http://127.0.0.1:1/channels/"
	t.Cleanup(func() { discordgo.EndpointChannels = prev })

	ch, err := NewResolver(s).Resolve(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, "cached", ch.ID())
}

func TestChannel_Send(t *testing.T) {
	api := &fakeAPI{}
	startAPI(t, api)
	s := newTestSession(t)

	path := filepath.Join(t.TempDir(), "123-run.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	ch := &Channel{s: s, id: "c1"}
	msg := membership.Message{
		Title:       "New user joined the server",
		Description: "Welcome to the server, Ann!",
		ImageRef:    "attachment://123.png",
		Color:       membership.ColorJoin,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, ch.Send(context.Background(), msg, "123.png", path))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.payloads, 1)
	require.Len(t, api.payloads[0].Embeds, 1)
	emb := api.payloads[0].Embeds[0]
	assert.Equal(t, "New user joined the server", emb.Title)
	assert.Equal(t, "attachment://123.png", emb.Image.URL)
	assert.Equal(t, membership.ColorJoin, emb.Color)
	assert.Equal(t, []byte("png-bytes"), api.files["123.png"])
}

func TestChannel_SendMissingFile(t *testing.T) {
	ch := &Channel{s: newTestSession(t), id: "c1"}
	err := ch.Send(context.Background(), membership.Message{}, "x.png", filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
