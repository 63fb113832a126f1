// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package common

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// NewEventFd creates a non-blocking, close-on-exec eventfd.
func NewEventFd() (int, error) {
	return unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

// SignalEventFd makes fd readable until it is drained.
func SignalEventFd(fd int) error {
	var buffer [8]byte
	binary.NativeEndian.PutUint64(buffer[:], 1)
	for {
		_, err := unix.Write(fd, buffer[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}

// DrainEventFd resets the counter of a non-blocking eventfd.
func DrainEventFd(fd int) error {
	var buffer [8]byte
	for {
		_, err := unix.Read(fd, buffer[:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil
		default:
			return err
		}
	}
}
