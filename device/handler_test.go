package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tsl2561"
	"github.com/mklimuk/tsl2561/protocol"
	"github.com/mklimuk/tsl2561/sim"
)

// MockBus is a mock implementation of tsl2561.Bus using testify/mock
type MockBus struct {
	mock.Mock
	concurrentOps int64
	maxConcurrent int64
}

func (m *MockBus) Transfer(ctx context.Context, msgs []tsl2561.Message) error {
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	for {
		seen := atomic.LoadInt64(&m.maxConcurrent)
		if concurrent <= seen || atomic.CompareAndSwapInt64(&m.maxConcurrent, seen, concurrent) {
			break
		}
	}
	defer atomic.AddInt64(&m.concurrentOps, -1)
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func word(width protocol.Width, op protocol.Op, reg, val byte) uint64 {
	return protocol.Command{Width: width, Op: op, Register: reg, Value: val}.Encode()
}

func TestHandler_WriteScenario(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)

	code, err := h.Ioctl(context.Background(), protocol.CommandCode, word(protocol.WidthByte, protocol.OpWrite, 0x0A, 0x7F))
	require.NoError(t, err)
	assert.Equal(t, int64(0), code)

	expected := [][]tsl2561.Message{{
		{Addr: 0x39, Buf: []byte{0x8A}},
		{Addr: 0x39, Buf: []byte{0x7F}},
	}}
	if diff := cmp.Diff(expected, sensor.Transfers()); diff != "" {
		t.Errorf("transfer mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, byte(0x7F), sensor.Register(0x0A))
}

func TestHandler_ReadScenario(t *testing.T) {
	sensor := sim.NewTSL2561(
		sim.WithRegister(protocol.RegData0Low, 0x34),
		sim.WithRegister(protocol.RegData0High, 0x12),
	)
	h := NewHandler(sensor)

	code, err := h.Ioctl(context.Background(), protocol.CommandCode, word(protocol.WidthWord, protocol.OpRead, 0x0C, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0x1234), code)

	expected := [][]tsl2561.Message{{
		{Addr: 0x39, Buf: []byte{0x8C}},
		{Addr: 0x39, Flags: tsl2561.FlagRead | tsl2561.FlagRecvLen, Buf: []byte{0x00, 0x00}},
	}}
	if diff := cmp.Diff(expected, sensor.Transfers()); diff != "" {
		t.Errorf("transfer mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_ReadByte(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)

	code, err := h.Ioctl(context.Background(), protocol.CommandCode, word(protocol.WidthByte, protocol.OpRead, protocol.RegID, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(sim.DefaultID), code)
	transfers := sensor.Transfers()
	require.Len(t, transfers, 1)
	require.Len(t, transfers[0], 2)
	assert.Len(t, transfers[0][1].Buf, 1)
}

func TestHandler_ForeignCommandCode(t *testing.T) {
	bus := new(MockBus)
	h := NewHandler(bus)

	for _, cmd := range []uint32{0, 99, 101, 0x5401} {
		t.Run(fmt.Sprint(cmd), func(t *testing.T) {
			code, err := h.Ioctl(context.Background(), cmd, word(protocol.WidthByte, protocol.OpRead, protocol.RegID, 0))
			assert.NoError(t, err)
			assert.Equal(t, int64(0), code)
		})
	}
	bus.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestHandler_UnknownOperation(t *testing.T) {
	bus := new(MockBus)
	h := NewHandler(bus)

	for _, op := range []protocol.Op{2, 3, 0x7F, 0xFF} {
		t.Run(op.String(), func(t *testing.T) {
			code, err := h.Ioctl(context.Background(), protocol.CommandCode, word(protocol.WidthByte, op, protocol.RegID, 0))
			assert.ErrorIs(t, err, protocol.ErrUnknownOperation)
			assert.Equal(t, protocol.SentinelError, code)
		})
	}
	bus.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestHandler_UndecodableWord(t *testing.T) {
	bus := new(MockBus)
	h := NewHandler(bus)

	tests := []struct {
		name     string
		arg      uint64
		expected error
	}{
		{"width", word(5, protocol.OpRead, 0x0A, 0), protocol.ErrUnknownWidth},
		{"register", word(protocol.WidthByte, protocol.OpRead, 0x8A, 0), protocol.ErrRegisterRange},
		{"reserved", 1 << 33, protocol.ErrReservedBits},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, err := h.Ioctl(context.Background(), protocol.CommandCode, test.arg)
			assert.ErrorIs(t, err, test.expected)
			assert.Equal(t, protocol.SentinelError, code)
		})
	}
	bus.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestHandler_RoundTrip(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)
	ctx := context.Background()

	for reg := byte(0); reg < protocol.RegisterCount-1; reg++ {
		for _, val := range []byte{0x00, 0x01, 0x7F, 0x80, 0xFF} {
			for _, width := range []protocol.Width{protocol.WidthByte, protocol.WidthWord} {
				code, err := h.Ioctl(ctx, protocol.CommandCode, word(width, protocol.OpWrite, reg, val))
				require.NoError(t, err)
				require.Equal(t, int64(0), code)

				code, err = h.Ioctl(ctx, protocol.CommandCode, word(width, protocol.OpRead, reg, 0))
				require.NoError(t, err)
				assert.Equal(t, int64(val), code, "reg %#x width %s", reg, width)
			}
		}
	}
}

func TestHandler_WordWriteLayout(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)

	err := h.Write(context.Background(), protocol.RegThreshLowL, protocol.WidthWord, 0xAB)
	require.NoError(t, err)
	transfers := sensor.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, []byte{0xAB, 0x00}, transfers[0][1].Buf)
	assert.Equal(t, byte(0xAB), sensor.Register(protocol.RegThreshLowL))
	assert.Equal(t, byte(0x00), sensor.Register(protocol.RegThreshLowH))
}

func TestHandler_TransferErrorPropagates(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)
	ctx := context.Background()
	busErr := errors.New("remote I/O error")

	sensor.FailNext(busErr)
	code, err := h.Ioctl(ctx, protocol.CommandCode, word(protocol.WidthByte, protocol.OpRead, protocol.RegControl, 0))
	assert.ErrorIs(t, err, ErrTransfer)
	assert.ErrorIs(t, err, busErr)
	assert.Equal(t, protocol.SentinelError, code)

	// a genuine read of 0 is not an error
	code, err = h.Ioctl(ctx, protocol.CommandCode, word(protocol.WidthByte, protocol.OpRead, protocol.RegControl, 0))
	assert.NoError(t, err)
	assert.Equal(t, int64(0), code)

	sensor.FailNext(busErr)
	err = h.Write(ctx, protocol.RegControl, protocol.WidthByte, 0x03)
	assert.ErrorIs(t, err, busErr)
	assert.Equal(t, byte(0x00), sensor.Register(protocol.RegControl))
}

func TestHandler_ShortRead(t *testing.T) {
	bus := tsl2561.BusFunc(func(ctx context.Context, msgs []tsl2561.Message) error {
		msgs[1].Buf = msgs[1].Buf[:1]
		msgs[1].Buf[0] = 0x42
		return nil
	})
	h := NewHandler(bus)
	_, err := h.Read(context.Background(), protocol.RegData1Low, protocol.WidthWord)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestHandler_CanceledContext(t *testing.T) {
	bus := new(MockBus)
	h := NewHandler(bus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Read(ctx, protocol.RegID, protocol.WidthByte)
	assert.ErrorIs(t, err, context.Canceled)
	bus.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

func TestHandler_CustomAddress(t *testing.T) {
	sensor := sim.NewTSL2561(sim.WithAddress(0x29))
	h := NewHandler(sensor, WithAddress(0x29))
	val, err := h.Read(context.Background(), protocol.RegID, protocol.WidthByte)
	require.NoError(t, err)
	assert.Equal(t, uint16(sim.DefaultID), val)

	other := NewHandler(sensor)
	_, err = other.Read(context.Background(), protocol.RegID, protocol.WidthByte)
	assert.ErrorIs(t, err, sim.ErrNack)
}

func TestHandler_SerializesTransactions(t *testing.T) {
	bus := new(MockBus)
	h := NewHandler(bus)
	ctx := context.Background()

	bus.On("Transfer", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			time.Sleep(2 * time.Millisecond)
		}).
		Return(nil)

	const numOps = 10
	var wg sync.WaitGroup
	wg.Add(numOps)
	for i := 0; i < numOps; i++ {
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := h.Read(ctx, protocol.RegID, protocol.WidthByte)
				assert.NoError(t, err)
				return
			}
			assert.NoError(t, h.Write(ctx, protocol.RegControl, protocol.WidthByte, 0x03))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&bus.maxConcurrent), "transactions must not overlap")
	bus.AssertNumberOfCalls(t, "Transfer", numOps)
}

func TestHandler_Do(t *testing.T) {
	sensor := sim.NewTSL2561()
	h := NewHandler(sensor)
	ctx := context.Background()

	res, err := h.Do(ctx, protocol.Write(protocol.RegTiming, protocol.WidthByte, 0x12))
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	res, err = h.Do(ctx, protocol.Read(protocol.RegTiming, protocol.WidthByte))
	require.NoError(t, err)
	assert.Equal(t, Result{Value: 0x12, Code: 0x12}, res)

	res, err = h.Do(ctx, protocol.Command{Op: 9})
	assert.ErrorIs(t, err, protocol.ErrUnknownOperation)
	assert.Equal(t, protocol.SentinelError, res.Code)
}
