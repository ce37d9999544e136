package tsl2561

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestSequential_WriteRead(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x39), []byte{0x8C}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x39), mock.Anything).Return([]byte{0x34, 0x12}, nil).Once()

	buf := make([]byte, 2)
	err := Sequential(bus).Transfer(context.Background(), []Message{
		{Addr: 0x39, Buf: []byte{0x8C}},
		{Addr: 0x39, Flags: FlagRead | FlagRecvLen, Buf: buf},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, buf)
	bus.AssertExpectations(t)
}

func TestSequential_CoalescesWrites(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x39), []byte{0x8A, 0x7F}).Return(nil).Once()

	err := Sequential(bus).Transfer(context.Background(), []Message{
		{Addr: 0x39, Buf: []byte{0x8A}},
		{Addr: 0x39, Buf: []byte{0x7F}},
	})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

func TestSequential_StopsOnError(t *testing.T) {
	bus := new(MockI2CBus)
	busErr := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(0x39), []byte{0x8C}).Return(busErr).Once()

	err := Sequential(bus).Transfer(context.Background(), []Message{
		{Addr: 0x39, Buf: []byte{0x8C}},
		{Addr: 0x39, Flags: FlagRead, Buf: make([]byte, 1)},
	})
	assert.ErrorIs(t, err, busErr)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestSequential_RejectsTenBitAddress(t *testing.T) {
	err := Sequential(new(MockI2CBus)).Transfer(context.Background(), []Message{{Addr: 0x139, Buf: []byte{0x80}}})
	assert.ErrorIs(t, err, ErrUnsupportedTransfer)
}

func TestCoalesce(t *testing.T) {
	read := make([]byte, 2)
	addr, w, r, err := Coalesce([]Message{
		{Addr: 0x39, Buf: []byte{0x8C}},
		{Addr: 0x39, Flags: FlagRead, Buf: read},
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x39), addr)
	assert.Equal(t, []byte{0x8C}, w)
	require.NotNil(t, r)
	assert.Len(t, r.Buf, 2)

	_, w, r, err = Coalesce([]Message{{Addr: 0x39, Buf: []byte{0x8A}}, {Addr: 0x39, Buf: []byte{0x7F}}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x8A, 0x7F}, w)
	assert.Nil(t, r)

	_, _, _, err = Coalesce(nil)
	assert.ErrorIs(t, err, ErrUnsupportedTransfer)
	_, _, _, err = Coalesce([]Message{{Addr: 0x39, Flags: FlagRead, Buf: read}, {Addr: 0x39, Buf: []byte{0x80}}})
	assert.ErrorIs(t, err, ErrUnsupportedTransfer)
	_, _, _, err = Coalesce([]Message{{Addr: 0x39, Buf: []byte{0x80}}, {Addr: 0x29, Buf: []byte{0x80}}})
	assert.ErrorIs(t, err, ErrUnsupportedTransfer)
}

func TestFlag_String(t *testing.T) {
	assert.Equal(t, "write", Flag(0).String())
	assert.Equal(t, "read", FlagRead.String())
	assert.Equal(t, "read|recv-len", (FlagRead | FlagRecvLen).String())
}
