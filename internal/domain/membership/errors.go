package membership

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind     = errors.New("invalid membership event kind")
	ErrEmptyMemberID   = errors.New("empty member id")
	ErrChannelNotFound = errors.New("target channel not found")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageNone     Stage = ""
	StageCompose  Stage = "compose"
	StageRender   Stage = "render"
	StageStorage  Stage = "storage"
	StageDelivery Stage = "delivery"
)

type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string { return "compose card: " + e.Err.Error() }
func (e *CompositionError) Unwrap() error { return e.Err }

type RenderError struct {
	Step string
	Err  error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render card (%s): %v", e.Step, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("asset %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("asset %s %s: %v", e.Op, e.Path, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

type DeliveryError struct {
	ChannelID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to channel %s: %v", e.ChannelID, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// StageOf maps an error from the pipeline to the stage that produced it.
func StageOf(err error) Stage {
	var (
		ce *CompositionError
		re *RenderError
		se *StorageError
		de *DeliveryError
	)
	switch {
	case err == nil:
		return StageNone
	case errors.As(err, &ce):
		return StageCompose
	case errors.As(err, &re):
		return StageRender
	case errors.As(err, &se):
		return StageStorage
	case errors.As(err, &de):
		return StageDelivery
	}
	return StageNone
}
