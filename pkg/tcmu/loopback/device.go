// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package loopback

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"

	"tcmutarget/pkg/common"
	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

// completionHistoryLimit bounds how many completions a device remembers.
const completionHistoryLimit = 4096

// DeviceConfig describes a device the way the kernel side would.
type DeviceConfig struct {
	Name string
	// Config is "<subtype>/<handler specific configuration>".
	Config    string
	BlockSize uint32
	Size      uint64
}

// Completion is a command reported back by the handler.
type Completion struct {
	Command *tcmu.Command
	Status  scsi.Status
}

// Device is an in-process tcmu.Device whose command queue is fed by Submit.
type Device struct {
	config DeviceConfig
	fd     int

	mutex       sync.Mutex
	queue       []*tcmu.Command
	nextID      uint64
	completions []Completion
	batches     int
	waiters     map[uint64]chan scsi.Status
	// closed and replaced on every completion or batch end
	changed chan struct{}
	closed  bool
}

var _ tcmu.Device = (*Device)(nil)

func newDevice(config DeviceConfig) (*Device, error) {
	fd, err := common.NewEventFd()
	if err != nil {
		return nil, err
	}
	return &Device{
		config:  config,
		fd:      fd,
		waiters: make(map[uint64]chan scsi.Status),
		changed: make(chan struct{}),
	}, nil
}

func (device *Device) Name() string {
	return device.config.Name
}

func (device *Device) Fd() int {
	return device.fd
}

func (device *Device) ConfigString() string {
	return device.config.Config
}

func (device *Device) BlockSize() (uint32, error) {
	return device.config.BlockSize, nil
}

func (device *Device) Size() (uint64, error) {
	return device.config.Size, nil
}

// Submit queues commands in order and makes the device descriptor readable.
// All of them become visible to NextCommand at once.
func (device *Device) Submit(commands ...*tcmu.Command) error {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	if device.closed {
		return ErrClosed{}
	}
	for _, command := range commands {
		device.nextID++
		command.ID = device.nextID
		if command.Sense == nil {
			command.Sense = make([]byte, scsi.SenseBufferSize)
		}
	}
	device.queue = append(device.queue, commands...)
	return common.SignalEventFd(device.fd)
}

// Execute submits a single command and waits for its completion. A command
// still pending when the device is removed fails with ErrClosed.
func (device *Device) Execute(ctx context.Context, command *tcmu.Command) (scsi.Status, error) {
	result := make(chan scsi.Status, 1)
	device.mutex.Lock()
	if device.closed {
		device.mutex.Unlock()
		return 0, ErrClosed{}
	}
	device.nextID++
	command.ID = device.nextID
	if command.Sense == nil {
		command.Sense = make([]byte, scsi.SenseBufferSize)
	}
	device.waiters[command.ID] = result
	device.queue = append(device.queue, command)
	err := common.SignalEventFd(device.fd)
	device.mutex.Unlock()
	if err != nil {
		return 0, err
	}
	select {
	case status, ok := <-result:
		if !ok {
			return 0, ErrClosed{}
		}
		return status, nil
	case <-ctx.Done():
		device.mutex.Lock()
		delete(device.waiters, command.ID)
		device.mutex.Unlock()
		return 0, ctx.Err()
	}
}

// NextCommand pops the oldest queued command. Once the queue is empty the
// descriptor is drained so that poll stops reporting it.
func (device *Device) NextCommand() *tcmu.Command {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	if len(device.queue) == 0 {
		if err := common.DrainEventFd(device.fd); err != nil {
			logger.GetLogger().Warnf("can't drain descriptor of %s: %s", device.config.Name, err)
		}
		return nil
	}
	command := device.queue[0]
	device.queue[0] = nil
	device.queue = device.queue[1:]
	return command
}

func (device *Device) CompleteCommand(command *tcmu.Command, status scsi.Status) {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	device.completions = append(device.completions, Completion{Command: command, Status: status})
	if overflow := len(device.completions) - completionHistoryLimit; overflow > 0 {
		device.completions = append(device.completions[:0:0], device.completions[overflow:]...)
	}
	if waiter, ok := device.waiters[command.ID]; ok {
		delete(device.waiters, command.ID)
		waiter <- status
	}
	device.notifyLocked()
}

func (device *Device) ProcessingComplete() {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	device.batches++
	device.notifyLocked()
}

func (device *Device) notifyLocked() {
	close(device.changed)
	device.changed = make(chan struct{})
}

// Completions returns the completions reported so far, oldest first.
func (device *Device) Completions() []Completion {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	return append([]Completion(nil), device.completions...)
}

// Batches is the number of ProcessingComplete calls.
func (device *Device) Batches() int {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	return device.batches
}

// WaitCompletions blocks until at least count completions were reported.
func (device *Device) WaitCompletions(ctx context.Context, count int) ([]Completion, error) {
	for {
		device.mutex.Lock()
		if len(device.completions) >= count {
			result := append([]Completion(nil), device.completions...)
			device.mutex.Unlock()
			return result, nil
		}
		changed := device.changed
		device.mutex.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitBatches blocks until at least count batches were ended.
func (device *Device) WaitBatches(ctx context.Context, count int) error {
	for {
		device.mutex.Lock()
		if device.batches >= count {
			device.mutex.Unlock()
			return nil
		}
		changed := device.changed
		device.mutex.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (device *Device) close() error {
	device.mutex.Lock()
	defer device.mutex.Unlock()
	if device.closed {
		return nil
	}
	device.closed = true
	device.queue = nil
	for id, waiter := range device.waiters {
		delete(device.waiters, id)
		close(waiter)
	}
	device.notifyLocked()
	return unix.Close(device.fd)
}
