package tsl2561

import (
	"context"
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrUnsupportedTransfer is returned by backends that cannot express a message list
// as a single bus transaction.
var ErrUnsupportedTransfer = errors.New("unsupported transfer")

// Flag mirrors the i2c_msg flags of the Linux I2C core.
type Flag uint16

const (
	// FlagRead marks a message as a read from the target (I2C_M_RD).
	FlagRead Flag = 0x0001
	// FlagRecvLen lets the target decide the byte count (I2C_M_RECV_LEN).
	FlagRecvLen Flag = 0x0400
)

func (f Flag) String() string {
	switch {
	case f&FlagRead != 0 && f&FlagRecvLen != 0:
		return "read|recv-len"
	case f&FlagRead != 0:
		return "read"
	default:
		return "write"
	}
}

// Message is one segment of a bus transfer. For reads the length of Buf is the
// number of bytes expected from the target.
type Message struct {
	Addr  uint16
	Flags Flag
	Buf   []byte
}

func (m Message) IsRead() bool {
	return m.Flags&FlagRead != 0
}

// Bus issues an ordered list of messages as one transfer.
type Bus interface {
	Transfer(ctx context.Context, msgs []Message) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// BusFunc adapts an ordinary function to the Bus interface.
type BusFunc func(ctx context.Context, msgs []Message) error

func (f BusFunc) Transfer(ctx context.Context, msgs []Message) error {
	return f(ctx, msgs)
}

// Sequential turns a plain read/write bus into a Bus. A write followed by a read
// is issued as WriteToAddr then ReadFromAddr, consecutive writes to the same
// address are coalesced into a single WriteToAddr.
func Sequential(bus I2CBus) Bus {
	return BusFunc(func(ctx context.Context, msgs []Message) error {
		return sequentialTransfer(ctx, bus, msgs)
	})
}

func sequentialTransfer(ctx context.Context, bus I2CBus, msgs []Message) error {
	for i := 0; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Addr > 0x7F {
			return fmt.Errorf("%w: 10-bit address %#x", ErrUnsupportedTransfer, msg.Addr)
		}
		if msg.IsRead() {
			err := bus.ReadFromAddr(ctx, byte(msg.Addr), msg.Buf)
			if err != nil {
				return err
			}
			continue
		}
		out := msg.Buf
		for i+1 < len(msgs) && !msgs[i+1].IsRead() && msgs[i+1].Addr == msg.Addr {
			out = append(append([]byte{}, out...), msgs[i+1].Buf...)
			i++
		}
		err := bus.WriteToAddr(ctx, byte(msg.Addr), out)
		if err != nil {
			return err
		}
	}
	return nil
}

// Coalesce splits a message list of the form [write..., read?] into the bytes to
// write and the read message, if any. Backends that only know a single
// write-then-read transaction use it to validate what they receive.
func Coalesce(msgs []Message) (addr uint16, w []byte, r *Message, err error) {
	if len(msgs) == 0 {
		return 0, nil, nil, fmt.Errorf("%w: empty transfer", ErrUnsupportedTransfer)
	}
	addr = msgs[0].Addr
	for i := range msgs {
		if msgs[i].Addr != addr {
			return 0, nil, nil, fmt.Errorf("%w: mixed addresses %#x and %#x", ErrUnsupportedTransfer, addr, msgs[i].Addr)
		}
		if msgs[i].IsRead() {
			if i != len(msgs)-1 {
				return 0, nil, nil, fmt.Errorf("%w: read must be the last message", ErrUnsupportedTransfer)
			}
			r = &msgs[i]
			break
		}
		w = append(w, msgs[i].Buf...)
	}
	return addr, w, r, nil
}
