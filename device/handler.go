// Package device hosts the TSL2561 register access protocol: the control surface
// handler bound to one sensor and the driver that binds it on probe.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/tsl2561"
	"github.com/mklimuk/tsl2561/protocol"
)

var (
	// ErrTransfer wraps every failure reported by the bus.
	ErrTransfer = errors.New("bus transfer failed")
	// ErrShortRead is returned when the target sent fewer bytes than the width requires.
	ErrShortRead = errors.New("short read")
)

// Controller is the control surface exposed to callers of a device node.
type Controller interface {
	Ioctl(ctx context.Context, cmd uint32, arg uint64) (int64, error)
}

// Result is the outcome of one command. Code is what the control surface returns.
type Result struct {
	Value uint16
	Code  int64
}

type HandlerOpts struct {
	Address uint16
	Logger  *slog.Logger
}

type Option func(*HandlerOpts)

func WithAddress(addr uint16) Option {
	return func(o *HandlerOpts) {
		o.Address = addr
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *HandlerOpts) {
		o.Logger = logger
	}
}

// Handler translates commands into register pointer transactions on one sensor.
// Transactions on the same handler never interleave.
type Handler struct {
	mx     sync.Mutex
	bus    tsl2561.Bus
	addr   uint16
	logger *slog.Logger
}

var _ Controller = &Handler{}

func NewHandler(bus tsl2561.Bus, opts ...Option) *Handler {
	config := HandlerOpts{
		Address: protocol.DefaultAddress,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handler{
		bus:    bus,
		addr:   config.Address,
		logger: config.Logger.With("addr", fmt.Sprintf("%#02x", config.Address)),
	}
}

// Address returns the bus address of the sensor.
func (h *Handler) Address() uint16 {
	return h.addr
}

// Ioctl is the control surface. Codes other than protocol.CommandCode are not
// addressed to this handler and return 0 without touching the bus. Words that do
// not decode and failed transfers return protocol.SentinelError together with the
// cause, so a failed read never looks like a read of 0.
func (h *Handler) Ioctl(ctx context.Context, cmd uint32, arg uint64) (int64, error) {
	if cmd != protocol.CommandCode {
		h.logger.Debug("ignoring foreign control code", "cmd", cmd, "arg", fmt.Sprintf("%#x", arg))
		return 0, nil
	}
	command, err := protocol.Decode(arg)
	if err != nil {
		h.logger.Warn("rejecting command word", "arg", fmt.Sprintf("%#x", arg), "error", err)
		return protocol.SentinelError, err
	}
	res, err := h.Do(ctx, command)
	return res.Code, err
}

// Do executes a decoded command.
func (h *Handler) Do(ctx context.Context, cmd protocol.Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{Code: protocol.SentinelError}, err
	}
	var res Result
	var err error
	switch cmd.Op {
	case protocol.OpRead:
		res.Value, err = h.Read(ctx, cmd.Register, cmd.Width)
		res.Code = int64(res.Value)
	case protocol.OpWrite:
		err = h.Write(ctx, cmd.Register, cmd.Width, cmd.Value)
	}
	h.logger.Debug("command executed",
		"op", cmd.Op,
		"width", cmd.Width,
		"reg", protocol.RegisterName(cmd.Register),
		"val", fmt.Sprintf("%#x", cmd.Value),
		"result", fmt.Sprintf("%#x", res.Value),
		"error", err,
	)
	if err != nil {
		return Result{Code: protocol.SentinelError}, err
	}
	return res, nil
}

// Read fetches a register. Words are assembled low byte first.
func (h *Handler) Read(ctx context.Context, reg byte, width protocol.Width) (uint16, error) {
	cmd := protocol.Read(reg, width)
	if err := cmd.Validate(); err != nil {
		return 0, err
	}
	buf := make([]byte, width.Bytes())
	msgs := []tsl2561.Message{
		{Addr: h.addr, Buf: []byte{cmd.Pointer()}},
		{Addr: h.addr, Flags: tsl2561.FlagRead | tsl2561.FlagRecvLen, Buf: buf},
	}
	if err := h.transfer(ctx, msgs); err != nil {
		return 0, fmt.Errorf("could not read register %s: %w", protocol.RegisterName(reg), err)
	}
	if len(msgs[1].Buf) < len(buf) {
		return 0, fmt.Errorf("could not read register %s: %w: got %d of %d bytes", protocol.RegisterName(reg), ErrShortRead, len(msgs[1].Buf), len(buf))
	}
	data := msgs[1].Buf
	if width == protocol.WidthWord {
		return uint16(data[0]) | uint16(data[1])<<8, nil
	}
	return uint16(data[0]), nil
}

// Write stores value in a register. A word write sends value as the low byte and
// zero as the high byte.
func (h *Handler) Write(ctx context.Context, reg byte, width protocol.Width, value byte) error {
	cmd := protocol.Write(reg, width, value)
	if err := cmd.Validate(); err != nil {
		return err
	}
	data := make([]byte, width.Bytes())
	data[0] = value
	msgs := []tsl2561.Message{
		{Addr: h.addr, Buf: []byte{cmd.Pointer()}},
		{Addr: h.addr, Buf: data},
	}
	if err := h.transfer(ctx, msgs); err != nil {
		return fmt.Errorf("could not write register %s: %w", protocol.RegisterName(reg), err)
	}
	return nil
}

func (h *Handler) transfer(ctx context.Context, msgs []tsl2561.Message) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	err := h.bus.Transfer(ctx, msgs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	return nil
}

// Open is called when a device node backed by the handler is opened.
func (h *Handler) Open(ctx context.Context) error {
	h.logger.Debug("device opened")
	return nil
}

// Release is called when a device node backed by the handler is closed.
func (h *Handler) Release(ctx context.Context) error {
	h.logger.Debug("device released")
	return nil
}
