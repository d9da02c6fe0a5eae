package membership

import (
	"context"
	"time"
)

// Session is one live rendering-engine instance. Close must be safe to call
// on every exit path.
type Session interface {
	Load(html string) error
	WaitImages(timeout time.Duration) (bool, error)
	SetViewport(width, height int) error
	Screenshot() ([]byte, error)
	Close() error
}

type Engine interface {
	NewSession(ctx context.Context) (Session, error)
}

// Channel is a resolved, live delivery target.
type Channel interface {
	ID() string
	Send(ctx context.Context, msg Message, attachmentName, filePath string) error
}

type ChannelResolver interface {
	Resolve(ctx context.Context, channelID string) (Channel, error)
}

type DeliveryLog interface {
	Record(ctx context.Context, d *Delivery) error
}

type Clock interface {
	Now() time.Time
}
