// Package protocol implements the command word understood by the TSL2561 control
// surface.
//
// A command word packs four byte lanes, least significant first:
//
//	bits  0..7   length    0 = byte, 1 = word
//	bits  8..15  operation 0 = write, 1 = read
//	bits 16..23  register  register address without the command bit
//	bits 24..31  value     byte to write, ignored by reads
//
// The word is only ever interpreted by Decode; everything past the boundary works
// on Command.
package protocol

import (
	"errors"
	"fmt"
)

const (
	// CommandCode is the control code that selects the register access protocol.
	CommandCode uint32 = 100
	// CommandBit is set on every register pointer byte sent to the sensor.
	CommandBit byte = 0x80
	// SentinelError is returned by the control surface for operations it does not know.
	SentinelError int64 = 0x100000000
	// DefaultAddress is the sensor address with the ADDR SEL pin floating.
	DefaultAddress uint16 = 0x39
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrUnknownWidth     = errors.New("unknown width")
	ErrRegisterRange    = errors.New("register address overlaps command bit")
	ErrReservedBits     = errors.New("reserved bits set")
)

type Op byte

const (
	OpWrite Op = 0
	OpRead  Op = 1
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	default:
		return fmt.Sprintf("op(%d)", byte(o))
	}
}

type Width byte

const (
	WidthByte Width = 0
	WidthWord Width = 1
)

// Bytes returns the number of data bytes moved by a transfer of this width.
func (w Width) Bytes() int {
	if w == WidthWord {
		return 2
	}
	return 1
}

func (w Width) String() string {
	switch w {
	case WidthByte:
		return "byte"
	case WidthWord:
		return "word"
	default:
		return fmt.Sprintf("width(%d)", byte(w))
	}
}

// Command is the decoded form of a command word.
type Command struct {
	Width    Width `yaml:"width"`
	Op       Op    `yaml:"op"`
	Register byte  `yaml:"register"`
	Value    byte  `yaml:"value"`
}

// Read builds a read command.
func Read(reg byte, width Width) Command {
	return Command{Width: width, Op: OpRead, Register: reg}
}

// Write builds a write command.
func Write(reg byte, width Width, value byte) Command {
	return Command{Width: width, Op: OpWrite, Register: reg, Value: value}
}

// Decode interprets a command word. Unknown operation and width lanes are
// reported with ErrUnknownOperation and ErrUnknownWidth respectively.
func Decode(word uint64) (Command, error) {
	if word>>32 != 0 {
		return Command{}, fmt.Errorf("%w: %#x", ErrReservedBits, word)
	}
	cmd := Command{
		Width:    Width(word),
		Op:       Op(word >> 8),
		Register: byte(word >> 16),
		Value:    byte(word >> 24),
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate checks that every field holds a representable value.
func (c Command) Validate() error {
	switch c.Op {
	case OpRead, OpWrite:
	default:
		return fmt.Errorf("%w: %#x", ErrUnknownOperation, byte(c.Op))
	}
	switch c.Width {
	case WidthByte, WidthWord:
	default:
		return fmt.Errorf("%w: %#x", ErrUnknownWidth, byte(c.Width))
	}
	if c.Register&CommandBit != 0 {
		return fmt.Errorf("%w: %#x", ErrRegisterRange, c.Register)
	}
	return nil
}

// Encode packs the command into a word. Encode does not validate.
func (c Command) Encode() uint64 {
	return uint64(c.Width) | uint64(c.Op)<<8 | uint64(c.Register)<<16 | uint64(c.Value)<<24
}

// Pointer returns the register pointer byte, i.e. the register with the command bit set.
func (c Command) Pointer() byte {
	return c.Register | CommandBit
}

func (c Command) String() string {
	if c.Op == OpRead {
		return fmt.Sprintf("%s %s reg=%#02x", c.Op, c.Width, c.Register)
	}
	return fmt.Sprintf("%s %s reg=%#02x val=%#02x", c.Op, c.Width, c.Register, c.Value)
}
