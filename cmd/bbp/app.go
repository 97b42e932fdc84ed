package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/gousb"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/binaryphile/bbplayer/internal/bbfs"
	"github.com/binaryphile/bbplayer/internal/config"
	"github.com/binaryphile/bbplayer/internal/player"
	"github.com/binaryphile/bbplayer/internal/transport"
)

// app carries what every subcommand needs once flags and config are read.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	bus     int
	address int
	stderr  io.Writer
}

func (a *app) transportOptions() transport.Options {
	u := a.cfg.USB
	return transport.Options{
		VendorID:  gousb.ID(u.VendorID),
		ProductID: gousb.ID(u.ProductID),
		Config:    u.Config,
		Interface: u.Interface,
		EPIn:      u.EndpointIn,
		EPOut:     u.EndpointOut,
		Bus:       a.bus,
		Address:   a.address,
		Logger:    a.log,
	}
}

func (a *app) playerOptions(extra ...player.Option) []player.Option {
	return append([]player.Option{
		player.WithLogger(a.log),
		player.WithGeometry(a.cfg.NAND),
		player.WithLinkOptions(a.cfg.LinkOptions()),
		player.WithFilesystem(bbfs.Factory(a.log)),
	}, extra...)
}

// session opens the player, initialises it and runs fn. The device is
// released however fn returns.
func (a *app) session(ctx context.Context, fn func(*player.Conn) error, extra ...player.Option) error {
	dev, err := transport.Open(a.transportOptions())
	if err != nil {
		return err
	}
	return player.Session(ctx, player.New(dev, a.playerOptions(extra...)...), fn)
}

// progress shows a bar on a terminal and periodic log lines otherwise.
type progress struct {
	desc string
	w    io.Writer
	tty  bool
	log  *slog.Logger
	bar  *progressbar.ProgressBar
}

func (a *app) newProgress(desc string) *progress {
	tty := false
	if f, ok := a.stderr.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &progress{desc: desc, w: a.stderr, tty: tty, log: a.log}
}

func (p *progress) update(done, total uint32) {
	if !p.tty {
		if done == total || done%256 == 0 {
			p.log.Info(p.desc, "done", done, "total", total)
		}
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions64(int64(total),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionSetItsString("blocks"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set64(int64(done))
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// parseNumber accepts decimal, 0x hex, 0o octal or 0b binary.
func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

// parseTime accepts RFC 3339; empty means now.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339, e.g. 2006-01-02T15:04:05Z", s)
	}
	return t, nil
}

// spareFile is where a block's spare is stored next to its data.
func spareFile(path string) string {
	return path + ".spare"
}
