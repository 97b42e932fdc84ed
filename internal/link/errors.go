package link

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming indicates bytes on the wire that violate the link protocol.
	ErrFraming = errors.New("framing error")

	// ErrDesync indicates a reply whose decoded length differs from the
	// declared one. The link cannot be trusted after this.
	ErrDesync = fmt.Errorf("%w: link desynchronised", ErrFraming)

	// ErrReadyTimeout indicates the device never signalled ready before the deadline.
	ErrReadyTimeout = errors.New("timed out waiting for ready signal")
)

// ReplyLengthError is returned when a reply header declares a length of
// zero or more than the caller can accept.
type ReplyLengthError struct {
	Length int
	Max    int
}

func (e *ReplyLengthError) Error() string {
	return fmt.Sprintf("reply length %d outside 1-%d", e.Length, e.Max)
}

func (e *ReplyLengthError) Unwrap() error {
	return ErrFraming
}
