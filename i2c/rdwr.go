package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/tsl2561"
)

var ErrUnsupportedPlatform = errors.New("i2c-dev is not available on this platform")

var _ tsl2561.Bus = &RDWRBus{}

type RDWROpts struct {
	BlockReads bool
}

type RDWROpt func(*RDWROpts)

// WithBlockReads passes the receive-length flag to the adapter, so the target
// sends its own byte count ahead of the data (SMBus block read). Without it reads
// move exactly the requested number of bytes.
func WithBlockReads() RDWROpt {
	return func(o *RDWROpts) {
		o.BlockReads = true
	}
}

// RDWRBus talks to an i2c-dev character device and sends each message list as
// one I2C_RDWR ioctl, so the adapter never releases the bus between messages.
type RDWRBus struct {
	mx     sync.Mutex
	path   string
	fd     int
	config RDWROpts
}

func NewRDWRBus(path string, opts ...RDWROpt) (*RDWRBus, error) {
	var config RDWROpts
	for _, opt := range opts {
		opt(&config)
	}
	fd, err := openDev(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	return &RDWRBus{path: path, fd: fd, config: config}, nil
}

// DevicePath returns the i2c-dev node for a bus number.
func DevicePath(bus int) string {
	return fmt.Sprintf("/dev/i2c-%d", bus)
}

func (b *RDWRBus) Transfer(ctx context.Context, msgs []tsl2561.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("%w: empty transfer", tsl2561.ErrUnsupportedTransfer)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.fd < 0 {
		return fmt.Errorf("%s: %w", b.path, errBusClosed)
	}
	err := rdwr(b.fd, msgs, b.config.BlockReads)
	if err != nil {
		return fmt.Errorf("i2c transfer on %s failed: %w", b.path, err)
	}
	return nil
}

func (b *RDWRBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := closeDev(b.fd)
	b.fd = -1
	return err
}

var errBusClosed = errors.New("bus closed")

// as defined in /usr/include/linux/i2c.h
const (
	msgRead    = 0x0001
	msgRecvLen = 0x0400
)

// kernelMsg maps a message to i2c_msg flags and the buffer handed to the kernel.
// Receive-length reads get a block buffer, and only when block reads are enabled.
func kernelMsg(msg tsl2561.Message, blockReads bool) (uint16, []byte) {
	if !msg.IsRead() {
		return 0, msg.Buf
	}
	if blockReads && msg.Flags&tsl2561.FlagRecvLen != 0 {
		return msgRead | msgRecvLen, blockBuffer()
	}
	return msgRead, msg.Buf
}

// maxBlock is I2C_SMBUS_BLOCK_MAX.
const maxBlock = 32

// blockBuffer prepares the buffer the kernel expects for a receive-length read:
// the first byte holds the number of extra bytes, followed by room for a full block.
func blockBuffer() []byte {
	buf := make([]byte, 1+maxBlock)
	buf[0] = 1
	return buf
}

// unpackBlock copies a received block into dst, returning the slice of dst that was filled.
func unpackBlock(dst, block []byte) ([]byte, error) {
	n := int(block[0])
	if n > maxBlock {
		return nil, fmt.Errorf("block length %d exceeds %d", n, maxBlock)
	}
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, block[1:1+n])
	return dst[:n], nil
}
