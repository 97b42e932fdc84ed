// Package link implements the framing protocol spoken over the player's
// bulk endpoints: the ready handshake, the piecemeal encodings used for
// control payloads and replies, and the chunked encoding used for block
// uploads. It knows nothing about command semantics.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Transport performs single timed bulk transfers.
type Transport interface {
	// Send writes data to the OUT endpoint in one transfer.
	Send(ctx context.Context, data []byte, timeout time.Duration) error

	// Receive reads at most maxLen bytes from the IN endpoint in one
	// transfer and returns only the bytes actually transferred.
	Receive(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error)
}

// Options configures a Codec.
type Options struct {
	Timeout      time.Duration // per transfer
	ReadyTimeout time.Duration // overall bound on one ready handshake
	Logger       *slog.Logger
}

// DefaultOptions returns the protocol's standard timings.
func DefaultOptions() Options {
	return Options{
		Timeout:      Timeout,
		ReadyTimeout: 10 * time.Second,
	}
}

// Codec frames requests and replies on top of a Transport.
// It is not safe for concurrent use; the link is half-duplex.
type Codec struct {
	t    Transport
	opts Options
	log  *slog.Logger
}

// New creates a Codec. Zero option fields take their defaults.
func New(t Transport, opts Options) *Codec {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = def.ReadyTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Codec{
		t:    t,
		opts: opts,
		log:  log.With("component", "link"),
	}
}

// WaitReady polls the device until it emits the ready signal.
// Any other 4-byte read is discarded. Polling stops with ErrReadyTimeout
// once the ready deadline passes, or with the transport's error.
func (c *Codec) WaitReady(ctx context.Context) error {
	deadline := time.Now().Add(c.opts.ReadyTimeout)
	for polls := 1; ; polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, err := c.isReady(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %d polls", ErrReadyTimeout, polls)
		}
	}
}

func (c *Codec) isReady(ctx context.Context) (bool, error) {
	buf, err := c.t.Receive(ctx, len(ReadySignal), c.opts.Timeout)
	if err != nil {
		return false, err
	}
	if len(buf) != len(ReadySignal) {
		return false, fmt.Errorf("%w: ready poll returned %d bytes", ErrFraming, len(buf))
	}
	return IsReadySignal(buf), nil
}

// SendPiecemeal sends a short control payload in piecemeal encoding.
func (c *Codec) SendPiecemeal(ctx context.Context, data []byte) error {
	return c.t.Send(ctx, EncodePiecemeal(data), c.opts.Timeout)
}

// SendChunked sends a bulk payload, one transfer per chunk.
func (c *Codec) SendChunked(ctx context.Context, data []byte) error {
	for i, frame := range BuildSendChunks(data) {
		if err := c.t.Send(ctx, frame, c.opts.Timeout); err != nil {
			return fmt.Errorf("send chunk %d: %w", i, err)
		}
	}
	return nil
}

// SendCommand waits for ready and sends the 8-byte request envelope.
func (c *Codec) SendCommand(ctx context.Context, opcode, arg uint32) error {
	if err := c.WaitReady(ctx); err != nil {
		return err
	}
	return c.SendPiecemeal(ctx, BuildCommand(opcode, arg))
}

// ReceiveReply reads a length-prefixed reply of at most maxLen bytes.
// Zero-length and over-length replies fail before any body is read.
func (c *Codec) ReceiveReply(ctx context.Context, maxLen int) ([]byte, error) {
	n, err := c.receiveLength(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 || n > maxLen {
		return nil, &ReplyLengthError{Length: n, Max: maxLen}
	}
	return c.receiveBody(ctx, n)
}

func (c *Codec) receiveLength(ctx context.Context) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		hdr, err := c.t.Receive(ctx, LengthHeaderSize, c.opts.Timeout)
		if err != nil {
			return 0, err
		}
		if IsReadySignal(hdr) {
			c.log.Warn("received unexpected ready signal")
			continue
		}
		return ParseLengthHeader(hdr)
	}
}

// receiveBody buffers packets until the first short one, acknowledges,
// then decodes exactly n bytes.
func (c *Codec) receiveBody(ctx context.Context, n int) ([]byte, error) {
	size := InflatedSize(n)
	buf := make([]byte, 0, size)
	for {
		want := min(PacketSize, size-len(buf))
		if want == 0 {
			break
		}
		pkt, err := c.t.Receive(ctx, want, c.opts.Timeout)
		if err != nil {
			return nil, err
		}
		buf = append(buf, pkt...)
		if len(pkt) < PacketSize {
			break
		}
	}

	if err := c.sendAck(ctx); err != nil {
		return nil, fmt.Errorf("ack: %w", err)
	}

	data, err := DecodePiecemeal(buf, n)
	if err != nil {
		c.log.Error("reply decode failed", "declared", n, "received", len(buf), "err", err)
		return nil, err
	}
	return data, nil
}

func (c *Codec) sendAck(ctx context.Context) error {
	return c.t.Send(ctx, []byte{TagAck}, c.opts.Timeout)
}
