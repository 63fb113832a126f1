// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package tcmu describes the boundary with a TCMU style passthrough framework:
// the handler registered with it, the devices it exposes and the commands
// those devices queue.
package tcmu

import (
	"tcmutarget/pkg/scsi"
)

const (
	// StatusNotHandled tells the framework the command was not claimed by
	// the handler.
	StatusNotHandled scsi.Status = -1
	// StatusAsyncHandled means the completion is reported later, outside of
	// the call that dispatched the command.
	StatusAsyncHandled scsi.Status = -2
)

// StatusToString extends scsi.Status.String with the framework statuses.
func StatusToString(status scsi.Status) string {
	switch status {
	case StatusNotHandled:
		return "NOT HANDLED"
	case StatusAsyncHandled:
		return "ASYNC HANDLED"
	default:
		return status.String()
	}
}

// Command is one SCSI command pulled from a device queue.
type Command struct {
	// ID is assigned by the framework and is unique per device.
	ID    uint64
	CDB   []byte
	IOVec [][]byte
	Sense []byte
}

// NewCommand allocates a command with a zeroed sense buffer.
func NewCommand(cdb []byte, iovec ...[]byte) *Command {
	return &Command{
		CDB:   cdb,
		IOVec: iovec,
		Sense: make([]byte, scsi.SenseBufferSize),
	}
}

// Device is a virtual SCSI device exposed by the framework.
type Device interface {
	Name() string
	// Fd becomes readable when commands are queued.
	Fd() int
	ConfigString() string
	// BlockSize is the hw_block_size attribute.
	BlockSize() (uint32, error)
	// Size is the advertised size in bytes.
	Size() (uint64, error)
	// NextCommand returns nil once the queue is empty. It never blocks.
	NextCommand() *Command
	CompleteCommand(command *Command, status scsi.Status)
	// ProcessingComplete ends a batch of completions.
	ProcessingComplete()
}

// Framework is the registration context returned by the framework.
type Framework interface {
	// ControlFd becomes readable when devices were added or removed.
	ControlFd() int
	// ControlReady runs Handler.Added and Handler.Removed for every pending
	// lifecycle change.
	ControlReady() error
	Close() error
}

// Handler is what a userspace backend registers with the framework.
type Handler struct {
	Name              string
	Subtype           string
	ConfigDescription string
	// CheckConfig validates a "<subtype>/<config>" string before a device
	// is created with it. A non empty reason explains a rejection.
	CheckConfig func(config string) (ok bool, reason string)
	Added       func(device Device) error
	Removed     func(device Device)
}
