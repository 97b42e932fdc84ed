package transport

import "errors"

var (
	// ErrNotFound indicates no attached device matched.
	ErrNotFound = errors.New("no player found")

	// ErrBadDescriptor indicates the device is not in the expected configuration.
	ErrBadDescriptor = errors.New("unexpected configuration descriptor")

	// ErrClosed indicates a transfer on a released device.
	ErrClosed = errors.New("device closed")
)

// Error is a USB-layer failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usb: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}
