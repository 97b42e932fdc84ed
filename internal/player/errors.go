package player

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by every operation on a connection that has
	// not completed Init, or has been closed. No transfer is attempted.
	ErrNotReady = errors.New("player not initialised")

	// ErrClosed is returned by Init on a closed connection.
	ErrClosed = errors.New("connection closed")

	// ErrFilesystem indicates the filesystem snapshot could not be obtained.
	ErrFilesystem = errors.New("filesystem unavailable")

	// ErrFileNameTooLong indicates a name that does not fit 8.3.
	ErrFileNameTooLong = errors.New("file name too long")

	// ErrFileNameEmpty indicates a name with no base part.
	ErrFileNameEmpty = errors.New("file name is empty")

	// ErrFileNameCString indicates a name with an embedded NUL.
	ErrFileNameCString = errors.New("file name is not a valid C string")

	// ErrInvalidBlock indicates a block index or buffer the device cannot take.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrReadBlock and ErrWriteBlock match a BlockError by direction.
	ErrReadBlock  = errors.New("block read failed")
	ErrWriteBlock = errors.New("block write failed")
)

// CommandError is a negative return code reported by the device.
type CommandError struct {
	Command Command
	Code    int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected by device: return code %d", e.Command, e.Code)
}

// BlockError reports a block transfer that failed every attempt.
type BlockError struct {
	Op       string // "read" or "write"
	Block    uint32
	Attempts int
	Err      error // last attempt's failure
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s block %d failed after %d attempts: %v", e.Op, e.Block, e.Attempts, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Is matches ErrReadBlock or ErrWriteBlock according to Op.
func (e *BlockError) Is(target error) bool {
	switch target {
	case ErrReadBlock:
		return e.Op == "read"
	case ErrWriteBlock:
		return e.Op == "write"
	}
	return false
}

// FileNameError reports a name rejected before anything is sent.
type FileNameError struct {
	Name string
	Err  error
}

func (e *FileNameError) Error() string {
	return fmt.Sprintf("%q: %v", e.Name, e.Err)
}

func (e *FileNameError) Unwrap() error {
	return e.Err
}
