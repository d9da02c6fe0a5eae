package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrSkip marks a message that can never be handled; the consumer commits it
// instead of redelivering.
type ErrSkip struct{ Err error }

func (e ErrSkip) Error() string { return "skip message: " + e.Err.Error() }
func (e ErrSkip) Unwrap() error { return e.Err }

func JSONHandler[M any](handle func(context.Context, []byte, *M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var msg M
		if err := json.Unmarshal(value, &msg); err != nil {
			return ErrSkip{Err: fmt.Errorf("decode json: %w", err)}
		}
		return handle(ctx, key, &msg)
	}
}
