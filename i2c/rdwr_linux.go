//go:build linux

package i2c

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mklimuk/tsl2561"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	ioctlRDWR = 0x0707
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRDWRData struct {
	msgs  uintptr
	nmsgs uint32
}

func openDev(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

func closeDev(fd int) error {
	return unix.Close(fd)
}

func rdwr(fd int, msgs []tsl2561.Message, blockReads bool) error {
	raw := make([]i2cMsg, len(msgs))
	bufs := make([][]byte, len(msgs))
	for i, msg := range msgs {
		flags, buf := kernelMsg(msg, blockReads)
		bufs[i] = buf
		raw[i] = i2cMsg{addr: msg.Addr, flags: flags, len: uint16(len(buf))}
		if len(buf) > 0 {
			raw[i].buf = uintptr(unsafe.Pointer(&buf[0]))
		}
	}
	data := i2cRDWRData{
		msgs:  uintptr(unsafe.Pointer(&raw[0])),
		nmsgs: uint32(len(raw)),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlRDWR, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(raw)
	runtime.KeepAlive(bufs)
	if errno != 0 {
		return errno
	}
	for i := range msgs {
		if raw[i].flags&msgRecvLen == 0 {
			continue
		}
		filled, err := unpackBlock(msgs[i].Buf, bufs[i])
		if err != nil {
			return err
		}
		msgs[i].Buf = filled
	}
	return nil
}
