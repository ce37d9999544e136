//go:build !linux

package i2c

import "github.com/mklimuk/tsl2561"

func openDev(path string) (int, error) {
	return -1, ErrUnsupportedPlatform
}

func closeDev(fd int) error {
	return ErrUnsupportedPlatform
}

func rdwr(fd int, msgs []tsl2561.Message, blockReads bool) error {
	return ErrUnsupportedPlatform
}
