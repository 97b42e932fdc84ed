package player

import (
	"log/slog"

	"github.com/binaryphile/bbplayer/internal/link"
	"github.com/binaryphile/bbplayer/internal/nand"
)

// BlockAttempts bounds every block read and write.
const BlockAttempts = 5

// ProgressFunc is called after each block of a whole-device transfer.
type ProgressFunc func(done, total uint32)

// FilesystemFactory builds the filesystem collaborator over a connection's
// command layer.
type FilesystemFactory func(*Commands) Filesystem

type options struct {
	logger     *slog.Logger
	geometry   nand.Geometry
	link       link.Options
	progress   ProgressFunc
	filesystem FilesystemFactory
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		geometry: nand.DefaultGeometry(),
		link:     link.DefaultOptions(),
	}
}

// Option configures a Conn or Commands.
type Option func(*options)

// WithLogger sets the logger. Each layer tags it with its component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithGeometry overrides the device NAND geometry.
func WithGeometry(g nand.Geometry) Option {
	return func(o *options) {
		o.geometry = g
	}
}

// WithLinkOptions overrides transfer and ready timeouts.
func WithLinkOptions(lo link.Options) Option {
	return func(o *options) {
		o.link = lo
	}
}

// WithProgress reports DumpNAND progress.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithFilesystem installs the filesystem collaborator. Init fails without one.
func WithFilesystem(f FilesystemFactory) Option {
	return func(o *options) {
		o.filesystem = f
	}
}
