package membership

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
)

func (k Kind) Valid() bool { return k == KindJoin || k == KindLeave }

// ParseKind accepts the wire names plus the card headings used by older producers.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "join", "add", "welcome":
		return KindJoin, nil
	case "leave", "remove", "bye":
		return KindLeave, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

type Event struct {
	Kind        Kind
	MemberID    string
	GuildID     string
	DisplayName string
	AvatarURL   string
	At          time.Time
}

// CardDocument is a self-contained HTML page describing one card.
type CardDocument struct {
	HTML   string
	Width  int
	Height int
}

const (
	CardWidth  = 1100
	CardHeight = 500
)

type Artifact struct {
	MemberID string
	Key      string
	Path     string
	Width    int
	Height   int
}

// AttachmentName is the file name the artifact is published under.
func (a Artifact) AttachmentName() string { return a.MemberID + ".png" }

type Message struct {
	Title       string
	Description string
	ImageRef    string
	Color       int
	Timestamp   time.Time
}

const (
	ColorJoin  = 0x00FF00
	ColorLeave = 0xFF0000
)

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

type Delivery struct {
	ID           int64          `json:"id"`
	MemberID     string         `json:"member_id"`
	Kind         Kind           `json:"kind"`
	ChannelID    string         `json:"channel_id"`
	Status       DeliveryStatus `json:"status"`
	Stage        Stage          `json:"stage"`
	Error        string         `json:"error"`
	RenderMillis int64          `json:"render_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AvatarURL builds the CDN address of a member avatar. Members without a
// custom avatar get one of the stock ones.
func AvatarURL(cdnHost, memberID, avatarHash string) string {
	if cdnHost == "" {
		cdnHost = "cdn.discordapp.com"
	}
	if avatarHash == "" {
		return fmt.Sprintf("https://%s/embed/avatars/%d.png", cdnHost, defaultAvatarIndex(memberID))
	}
	return fmt.Sprintf("https://%s/avatars/%s/%s.png?size=512", cdnHost, memberID, avatarHash)
}

func defaultAvatarIndex(memberID string) int {
	var n uint64
	for _, r := range memberID {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + uint64(r-'0')
	}
	return int((n >> 22) % 6)
}
