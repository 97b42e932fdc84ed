// Package player drives a BB Player over its USB link: the device command
// set, bounded block retries, and the connection session that gates every
// operation behind filesystem initialisation.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/binaryphile/bbplayer/internal/link"
	"github.com/binaryphile/bbplayer/internal/nand"
)

// ScratchFile is deleted on every Init.
const ScratchFile = "temp.tmp"

// State is the session state of a Conn.
type State int

const (
	Uninitialised State = iota
	Initialised
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Initialised:
		return "initialised"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device is an opened link endpoint the connection takes ownership of.
type Device interface {
	link.Transport
	Close() error
}

// Conn is a session with one player. It exclusively owns its Device.
// Not safe for concurrent use.
type Conn struct {
	dev   Device
	cmds  *Commands
	fs    Filesystem
	state State
	log   *slog.Logger
}

// New wraps an opened device. The connection starts uninitialised.
func New(dev Device, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Conn{
		dev:  dev,
		cmds: newCommands(dev, o),
		log:  o.logger.With("component", "player"),
	}
	if o.filesystem != nil {
		c.fs = o.filesystem(c.cmds)
	}
	return c
}

// State returns the current session state.
func (c *Conn) State() State {
	return c.state
}

// Commands exposes the underlying command layer. Calls made through it
// bypass the session gate.
func (c *Conn) Commands() *Commands {
	return c.cmds
}

func (c *Conn) ready() error {
	if c.state != Initialised {
		return ErrNotReady
	}
	return nil
}

// Init brings the device into a usable state: sequence number, block
// count, filesystem snapshot, device filesystem init and scratch cleanup.
// A filesystem that cannot be loaded is fatal.
func (c *Conn) Init(ctx context.Context) error {
	if c.state == Closed {
		return ErrClosed
	}
	if c.fs == nil {
		return fmt.Errorf("%w: no filesystem configured", ErrFilesystem)
	}
	if err := c.cmds.SetSeqNo(ctx, 1); err != nil {
		return fmt.Errorf("set sequence number: %w", err)
	}
	n, err := c.cmds.NumBlocks(ctx)
	if err != nil {
		return fmt.Errorf("block count: %w", err)
	}
	if err := c.fs.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrFilesystem, err)
	}
	if err := c.cmds.InitFS(ctx); err != nil {
		return fmt.Errorf("init filesystem: %w", err)
	}
	if err := c.fs.DeleteFile(ctx, ScratchFile); err != nil {
		return fmt.Errorf("delete %s: %w", ScratchFile, err)
	}
	c.state = Initialised
	c.log.Info("player initialised", "blocks", n)
	return nil
}

// Close releases the device. It is valid in any state and idempotent; the
// release error, if any, is returned for the caller to log.
func (c *Conn) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed
	return c.dev.Close()
}

// Session initialises c, runs fn and closes c on every path. Close
// failures are logged, not returned.
func Session(ctx context.Context, c *Conn, fn func(*Conn) error) error {
	defer func() {
		if err := c.Close(); err != nil {
			c.log.Warn("close failed", "err", err)
		}
	}()
	if err := c.Init(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return fn(c)
}

// NumBlocks returns the device block count.
func (c *Conn) NumBlocks(ctx context.Context) (uint32, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.cmds.NumBlocks(ctx)
}

// ReadBlock reads block n and its spare.
func (c *Conn) ReadBlock(ctx context.Context, n uint32) (nand.BlockSpare, error) {
	if err := c.ready(); err != nil {
		return nand.BlockSpare{}, err
	}
	return c.cmds.ReadBlock(ctx, n)
}

// WriteBlock writes block n with spare. A spare marking the block bad
// writes nothing.
func (c *Conn) WriteBlock(ctx context.Context, n uint32, block, spare []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmds.WriteBlock(ctx, n, block, spare)
}

// DumpNAND reads the whole device.
func (c *Conn) DumpNAND(ctx context.Context) (nand.BlockSpare, error) {
	if err := c.ready(); err != nil {
		return nand.BlockSpare{}, err
	}
	return c.cmds.DumpNAND(ctx)
}

// BBID returns the console ID.
func (c *Conn) BBID(ctx context.Context) (uint32, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.cmds.BBID(ctx)
}

// SetLED sets the LED state.
func (c *Conn) SetLED(ctx context.Context, value uint32) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmds.SetLED(ctx, value)
}

// SetTime sets the console clock to t.
func (c *Conn) SetTime(ctx context.Context, t time.Time) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmds.SetTime(ctx, t)
}

// ListFiles returns the files in the current filesystem snapshot.
func (c *Conn) ListFiles() ([]FileInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.fs.ListFiles()
}

// ListFileBlocks returns the block chain of name.
func (c *Conn) ListFileBlocks(name string) ([]uint16, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	return c.fs.FileBlocks(name)
}

// DumpCurrentFS returns the raw current filesystem block.
func (c *Conn) DumpCurrentFS() ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.fs.Dump()
}

// ReadFile returns the contents of name and whether it exists.
func (c *Conn) ReadFile(ctx context.Context, name string) ([]byte, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	return c.fs.ReadFile(ctx, name)
}

// WriteFile stores data as name, replacing any existing file.
func (c *Conn) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.fs.WriteFile(ctx, name, data)
}

// DeleteFile removes name. An absent file is not an error.
func (c *Conn) DeleteFile(ctx context.Context, name string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.fs.DeleteFile(ctx, name)
}

// Stats returns filesystem block usage.
func (c *Conn) Stats() (Stats, error) {
	if err := c.ready(); err != nil {
		return Stats{}, err
	}
	return c.fs.Stats()
}
