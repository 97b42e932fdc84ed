// Package transport owns the USB link to the player: discovery, opening
// and claiming the RDB interface, and timed bulk transfers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/gousb"
)

// Player USB identification
const (
	VendorID        gousb.ID = 0x1527
	ProductID       gousb.ID = 0xBBDB
	ConfigNumber             = 1
	InterfaceNum             = 0
	BulkEndpointIn           = 0x82
	BulkEndpointOut          = 0x02
)

// standard CLEAR_FEATURE(ENDPOINT_HALT)
const (
	reqClearFeature  = 0x01
	featEndpointHalt = 0x00
)

// Options selects and configures the device to open.
type Options struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Config    int
	Interface int
	EPIn      int // endpoint address, e.g. 0x82
	EPOut     int // endpoint address, e.g. 0x02

	// Bus and Address pick a specific device when several are attached.
	// Zero means the first match.
	Bus     int
	Address int

	Logger *slog.Logger
}

// DefaultOptions returns the identification of the retail player.
func DefaultOptions() Options {
	return Options{
		VendorID:  VendorID,
		ProductID: ProductID,
		Config:    ConfigNumber,
		Interface: InterfaceNum,
		EPIn:      BulkEndpointIn,
		EPOut:     BulkEndpointOut,
	}
}

func (o Options) matches(desc *gousb.DeviceDesc) bool {
	if desc.Vendor != o.VendorID || desc.Product != o.ProductID {
		return false
	}
	if o.Bus != 0 && desc.Bus != o.Bus {
		return false
	}
	if o.Address != 0 && desc.Address != o.Address {
		return false
	}
	return true
}

// Device is an open, claimed player. It is owned by exactly one session.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
	opts   Options
	log    *slog.Logger
}

// Open finds the player, claims its interface and clears both bulk
// endpoints. The active configuration is checked before and after the
// claim.
func Open(opts Options) (_ *Device, err error) {
	defer wrapErr("open", &err)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "transport")

	ctx := gousb.NewContext()
	d := &Device{ctx: ctx, opts: opts, log: log}
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	devs, err := ctx.OpenDevices(opts.matches)
	if len(devs) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if err != nil {
		log.Warn("some devices could not be opened", "err", err)
	}
	// Keep the first match and let the rest go.
	d.dev = devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}

	log.Info("found player",
		"bus", d.dev.Desc.Bus,
		"address", d.dev.Desc.Address,
		"speed", d.dev.Desc.Speed.String())

	if runtime.GOOS != "windows" {
		// Detaches the kernel driver on claim and reattaches it on release.
		if err := d.dev.SetAutoDetach(true); err != nil {
			log.Debug("kernel driver auto-detach unavailable", "err", err)
		}
	}

	d.config, err = d.dev.Config(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("set configuration %d: %w", opts.Config, err)
	}
	if err := d.checkDescriptor(); err != nil {
		return nil, err
	}

	d.intf, err = d.config.Interface(opts.Interface, 0)
	if err != nil {
		return nil, fmt.Errorf("claim interface %d: %w", opts.Interface, err)
	}

	if err := d.clearHalt(opts.EPIn); err != nil {
		return nil, err
	}
	if err := d.clearHalt(opts.EPOut); err != nil {
		return nil, err
	}

	d.epIn, err = d.intf.InEndpoint(opts.EPIn & 0x0F)
	if err != nil {
		return nil, fmt.Errorf("IN endpoint 0x%02x: %w", opts.EPIn, err)
	}
	d.epOut, err = d.intf.OutEndpoint(opts.EPOut & 0x0F)
	if err != nil {
		return nil, fmt.Errorf("OUT endpoint 0x%02x: %w", opts.EPOut, err)
	}

	if err := d.checkDescriptor(); err != nil {
		return nil, err
	}

	return d, nil
}

// checkDescriptor verifies the device still runs the expected configuration.
func (d *Device) checkDescriptor() error {
	active, err := d.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("active configuration: %w", err)
	}
	if active != d.opts.Config {
		return fmt.Errorf("%w: active configuration %d, want %d", ErrBadDescriptor, active, d.opts.Config)
	}
	return nil
}

func (d *Device) clearHalt(addr int) error {
	_, err := d.dev.Control(
		gousb.ControlOut|gousb.ControlStandard|gousb.ControlEndpoint,
		reqClearFeature, featEndpointHalt, uint16(addr), nil,
	)
	if err != nil {
		return fmt.Errorf("clear halt on 0x%02x: %w", addr, err)
	}
	return nil
}

// Close releases the interface, which reattaches the kernel driver where
// one was detached, and frees every USB resource. Errors are returned for
// the caller to report; resources are released regardless.
func (d *Device) Close() error {
	err := d.release()
	if err != nil {
		return &Error{Op: "close", Err: err}
	}
	return nil
}

func (d *Device) release() error {
	var errs []error
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.config != nil {
		errs = append(errs, d.config.Close())
		d.config = nil
	}
	if d.dev != nil {
		errs = append(errs, d.dev.Close())
		d.dev = nil
	}
	if d.ctx != nil {
		errs = append(errs, d.ctx.Close())
		d.ctx = nil
	}
	return errors.Join(errs...)
}

// Send writes data to the OUT endpoint in a single timed transfer.
func (d *Device) Send(ctx context.Context, data []byte, timeout time.Duration) error {
	if d.epOut == nil {
		return &Error{Op: "send", Err: ErrClosed}
	}
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := d.epOut.WriteContext(writeCtx, data)
	if err != nil {
		return &Error{Op: "send", Err: err}
	}
	if n != len(data) {
		return &Error{Op: "send", Err: fmt.Errorf("short write: %d/%d bytes", n, len(data))}
	}
	return nil
}

// Receive reads up to maxLen bytes from the IN endpoint in a single timed
// transfer, returning only what was transferred.
func (d *Device) Receive(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	if d.epIn == nil {
		return nil, &Error{Op: "receive", Err: ErrClosed}
	}
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, maxLen)
	n, err := d.epIn.ReadContext(readCtx, buf)
	if err != nil {
		return nil, &Error{Op: "receive", Err: err}
	}
	return buf[:n], nil
}
