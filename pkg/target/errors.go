// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import "fmt"

type ErrCapacityExceeded struct {
	Capacity int
}

func (err ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("device registry is full (capacity %d)", err.Capacity)
}

type ErrDuplicateDevice struct {
	Name string
}

func (err ErrDuplicateDevice) Error() string {
	return fmt.Sprintf("device %s is already registered", err.Name)
}

type ErrDeviceNotFound struct {
	Name string
}

func (err ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("device %s is not registered", err.Name)
}

// ErrIncomparableDevice is returned for a device whose dynamic type can't
// serve as a map key, such as a struct value holding a slice.
type ErrIncomparableDevice struct {
	Name string
}

func (err ErrIncomparableDevice) Error() string {
	return fmt.Sprintf("device %s can't be registered by identity, use a pointer type", err.Name)
}

// ErrInvalidDeviceAttributes is returned when the block size or the size of
// a device can't be used.
type ErrInvalidDeviceAttributes struct {
	Name   string
	Reason string
}

func (err ErrInvalidDeviceAttributes) Error() string {
	return fmt.Sprintf("device %s has invalid attributes: %s", err.Name, err.Reason)
}

// ErrBackendOpen wraps the I/O error that prevented opening a backing store.
type ErrBackendOpen struct {
	Name string
	Path string
	Err  error
}

func (err *ErrBackendOpen) Error() string {
	if err.Path == "" {
		return fmt.Sprintf("can't open backing store of %s: %s", err.Name, err.Err)
	}
	return fmt.Sprintf("can't open backing store %s of %s: %s", err.Path, err.Name, err.Err)
}

func (err *ErrBackendOpen) Unwrap() error {
	return err.Err
}

// ErrPoll is fatal: without a working poll no device can be served.
type ErrPoll struct {
	Err error
}

func (err *ErrPoll) Error() string {
	return fmt.Sprintf("poll failed: %s", err.Err)
}

func (err *ErrPoll) Unwrap() error {
	return err.Err
}

type ErrNullRead struct{}

func (err ErrNullRead) Error() string {
	return "null backing store holds no data"
}

type ErrNullWrite struct{}

func (err ErrNullWrite) Error() string {
	return "null backing store rejects writes"
}
