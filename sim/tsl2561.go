// Package sim provides an in-memory TSL2561 that speaks the register pointer
// protocol, so the control surface can be exercised without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/tsl2561"
	"github.com/mklimuk/tsl2561/protocol"
)

var (
	// ErrNack is returned for messages addressed to anything but the sensor.
	ErrNack = errors.New("sim: no acknowledge from address")
	// ErrNoCommandBit is returned when a pointer byte lacks the command bit.
	ErrNoCommandBit = errors.New("sim: command bit not set on pointer byte")
	// ErrNoPointer is returned when data is read before a pointer was written.
	ErrNoPointer = errors.New("sim: register pointer not set")
)

// DefaultID is the ID register content of a TSL2561 rev 0 part.
const DefaultID byte = 0x50

type Options struct {
	Address   uint16
	Registers map[byte]byte
}

type Option func(*Options)

func WithAddress(addr uint16) Option {
	return func(o *Options) {
		o.Address = addr
	}
}

// WithRegister presets a register value.
func WithRegister(reg byte, value byte) Option {
	return func(o *Options) {
		o.Registers[reg] = value
	}
}

// TSL2561 is a simulated sensor. Writes are echoed into the register file and
// reads auto-increment the register pointer, wrapping at the end of the file.
type TSL2561 struct {
	mx        sync.Mutex
	addr      uint16
	regs      [protocol.RegisterCount]byte
	transfers [][]tsl2561.Message
	failures  []error
}

var _ tsl2561.Bus = &TSL2561{}

func NewTSL2561(opts ...Option) *TSL2561 {
	config := Options{
		Address:   protocol.DefaultAddress,
		Registers: map[byte]byte{protocol.RegID: DefaultID},
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &TSL2561{addr: config.Address}
	for reg, val := range config.Registers {
		s.regs[reg%protocol.RegisterCount] = val
	}
	return s
}

// Transfer executes msgs against the register file. Each transfer starts
// without a pointer, as a fresh transaction would.
func (s *TSL2561) Transfer(ctx context.Context, msgs []tsl2561.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.transfers = append(s.transfers, cloneMessages(msgs))
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	pointer := -1
	for _, msg := range msgs {
		if msg.Addr != s.addr {
			return fmt.Errorf("%w %#x", ErrNack, msg.Addr)
		}
		if msg.IsRead() {
			if pointer < 0 {
				return ErrNoPointer
			}
			for i := range msg.Buf {
				msg.Buf[i] = s.regs[pointer]
				pointer = (pointer + 1) % protocol.RegisterCount
			}
			continue
		}
		data := msg.Buf
		if pointer < 0 {
			if len(data) == 0 {
				// quick write probe
				continue
			}
			if data[0]&protocol.CommandBit == 0 {
				return fmt.Errorf("%w: %#x", ErrNoCommandBit, data[0])
			}
			pointer = int(data[0]&0x0F) % protocol.RegisterCount
			data = data[1:]
		}
		for _, b := range data {
			s.regs[pointer] = b
			pointer = (pointer + 1) % protocol.RegisterCount
		}
	}
	return nil
}

// Register returns the current content of a register.
func (s *TSL2561) Register(reg byte) byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.regs[reg%protocol.RegisterCount]
}

// SetRegister overwrites a register, as a conversion cycle would for data registers.
func (s *TSL2561) SetRegister(reg byte, value byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.regs[reg%protocol.RegisterCount] = value
}

// Transfers returns a copy of every transfer seen so far.
func (s *TSL2561) Transfers() [][]tsl2561.Message {
	s.mx.Lock()
	defer s.mx.Unlock()
	res := make([][]tsl2561.Message, len(s.transfers))
	for i := range s.transfers {
		res[i] = cloneMessages(s.transfers[i])
	}
	return res
}

// Reset forgets recorded transfers.
func (s *TSL2561) Reset() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.transfers = nil
}

// FailNext makes the next transfer return err without touching the registers.
// Calls queue up.
func (s *TSL2561) FailNext(err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.failures = append(s.failures, err)
}

// cloneMessages copies buffers so later reads into them do not alter the record.
// Read buffers are recorded before the transfer fills them, so they hold zeros.
func cloneMessages(msgs []tsl2561.Message) []tsl2561.Message {
	res := make([]tsl2561.Message, len(msgs))
	for i, msg := range msgs {
		res[i] = tsl2561.Message{Addr: msg.Addr, Flags: msg.Flags, Buf: append([]byte{}, msg.Buf...)}
	}
	return res
}
