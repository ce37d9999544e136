package adapter

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tsl2561"
)

// fakeBridge answers HID reports the way an idle MCP2221 does, serving reads from data.
type fakeBridge struct {
	requests [][]byte
	data     []byte
	busy     bool
	last     []byte
}

func (b *fakeBridge) open(id ...int) (HIDDevice, error) {
	return b, nil
}

func (b *fakeBridge) Write(p []byte) (int, error) {
	b.last = append([]byte{}, p...)
	b.requests = append(b.requests, b.last)
	return len(p), nil
}

func (b *fakeBridge) Read(p []byte) (int, error) {
	clear(p)
	p[0] = b.last[0]
	switch b.last[0] {
	case cmdI2CWriteData, cmdI2CWriteNoStop, cmdI2CReadData, cmdI2CReadRepeatStart:
		if b.busy {
			p[1] = 0x01
		}
	case cmdGetI2CData:
		p[3] = byte(len(b.data))
		copy(p[4:], b.data)
	case cmdStatusSetParams:
		p[3] = b.last[3]
		p[14] = 117
		binary.LittleEndian.PutUint16(p[9:11], 2)
		p[16] = 0x72
	}
	return len(p), nil
}

func (b *fakeBridge) Close() error {
	return nil
}

func newTestBridge(b *fakeBridge) *MCP2221 {
	return NewMCP2221(WithOpener(b.open), WithResponseWait(0))
}

func TestMCP2221_TransferRead(t *testing.T) {
	bridge := &fakeBridge{data: []byte{0x34, 0x12}}
	d := newTestBridge(bridge)

	buf := make([]byte, 2)
	err := d.Transfer(context.Background(), []tsl2561.Message{
		{Addr: 0x39, Buf: []byte{0x8C}},
		{Addr: 0x39, Flags: tsl2561.FlagRead | tsl2561.FlagRecvLen, Buf: buf},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, buf)

	require.Len(t, bridge.requests, 3)
	assert.Equal(t, []byte{cmdI2CWriteNoStop, 0x01, 0x00, 0x39 << 1, 0x8C}, bridge.requests[0][:5])
	assert.Equal(t, []byte{cmdI2CReadRepeatStart, 0x02, 0x00, 0x39<<1 + 1}, bridge.requests[1][:4])
	assert.Equal(t, byte(cmdGetI2CData), bridge.requests[2][0])
}

func TestMCP2221_TransferWrite(t *testing.T) {
	bridge := &fakeBridge{}
	d := newTestBridge(bridge)

	err := d.Transfer(context.Background(), []tsl2561.Message{
		{Addr: 0x39, Buf: []byte{0x8A}},
		{Addr: 0x39, Buf: []byte{0x7F}},
	})
	require.NoError(t, err)
	require.Len(t, bridge.requests, 1)
	assert.Equal(t, []byte{cmdI2CWriteData, 0x02, 0x00, 0x39 << 1, 0x8A, 0x7F}, bridge.requests[0][:6])
}

func TestMCP2221_Busy(t *testing.T) {
	bridge := &fakeBridge{busy: true}
	d := newTestBridge(bridge)
	err := d.WriteToAddr(context.Background(), 0x39, []byte{0x80})
	assert.ErrorIs(t, err, tsl2561.ErrBusBusy)
}

func TestMCP2221_InvalidReadSize(t *testing.T) {
	bridge := &fakeBridge{data: []byte{0x01}}
	d := newTestBridge(bridge)
	err := d.ReadFromAddr(context.Background(), 0x39, make([]byte, 2))
	assert.Error(t, err)
}

func TestMCP2221_StatusAndSpeed(t *testing.T) {
	bridge := &fakeBridge{}
	d := newTestBridge(bridge)
	ctx := context.Background()

	status, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 117, status.I2CSpeedDivider)
	assert.Equal(t, uint16(2), status.LastWriteRequestedSize)
	assert.Equal(t, "7200", status.CurrentAddress)

	require.NoError(t, d.Init(ctx))
	last := bridge.requests[len(bridge.requests)-1]
	assert.Equal(t, []byte{cmdStatusSetParams, 0x00, cancelTransfer, setSpeed, 117}, last[:5])

	assert.Error(t, d.SetSpeed(ctx, 0))
	assert.Error(t, d.SetSpeed(ctx, 10_000_000))
}

func TestMCP2221_ReleaseBus(t *testing.T) {
	bridge := &fakeBridge{}
	d := newTestBridge(bridge)
	_, err := d.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(cancelTransfer), bridge.requests[0][2])
	require.NoError(t, d.Release(context.Background()))
}

func TestMCP2221_PayloadLimit(t *testing.T) {
	d := newTestBridge(&fakeBridge{})
	err := d.WriteToAddr(context.Background(), 0x39, make([]byte, 61))
	assert.Error(t, err)
}
