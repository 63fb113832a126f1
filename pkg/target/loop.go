// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package target serves the devices of a tcmu.Framework: it keeps the
// registry of attached devices, their backend state, and runs the poll loop
// that dispatches queued commands.
package target

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sys/unix"

	"tcmutarget/pkg/common"
	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/scsi"
	"tcmutarget/pkg/tcmu"
)

// Options tune the loop. Zero values mean an unbounded registry and
// commands executed on the loop goroutine.
type Options struct {
	MaxDevices int
	// IOWorkers > 0 enables the executor with that many concurrent devices.
	IOWorkers    int
	IOQueueDepth int
}

// Loop owns the registry and the backend states of one framework.
type Loop struct {
	registry *Registry
	opener   Opener
	executor *Executor

	wakeMutex  sync.Mutex
	wakeFd     int
	wakeClosed bool
}

func NewLoop(options Options, opener Opener) (*Loop, error) {
	wakeFd, err := common.NewEventFd()
	if err != nil {
		return nil, err
	}
	loop := &Loop{
		registry: NewRegistry(options.MaxDevices),
		opener:   opener,
		wakeFd:   wakeFd,
	}
	if options.IOWorkers > 0 {
		loop.executor = NewExecutor(options.IOWorkers, options.IOQueueDepth)
	}
	return loop, nil
}

func (loop *Loop) Registry() *Registry {
	return loop.registry
}

// Handler builds the tcmu.Handler whose attach and detach callbacks feed
// this loop. checkConfig may be nil.
func (loop *Loop) Handler(
	name, subtype, description string,
	checkConfig func(config string) (bool, string),
) *tcmu.Handler {
	return &tcmu.Handler{
		Name:              name,
		Subtype:           subtype,
		ConfigDescription: description,
		CheckConfig:       checkConfig,
		Added:             loop.Attach,
		Removed:           loop.Detach,
	}
}

// Attach creates the backend state of device and registers it. On failure
// the registry is unchanged and nothing stays open.
func (loop *Loop) Attach(device tcmu.Device) error {
	if err := loop.registry.Admit(device); err != nil {
		logger.GetLogger().Errorf("refusing %s: %s", device.Name(), err)
		return err
	}
	state, err := NewBackendState(device, loop.opener)
	if err != nil {
		return err
	}
	if err := loop.registry.Register(device, state); err != nil {
		if closeErr := state.Close(); closeErr != nil {
			return common.RaiseFrom(closeErr, err)
		}
		return err
	}
	return nil
}

// Detach waits for queued commands of device, unregisters it and releases
// its backend state.
func (loop *Loop) Detach(device tcmu.Device) {
	log := logger.GetLogger()
	if loop.executor != nil {
		loop.executor.Stop(device)
	}
	state, err := loop.registry.Unregister(device)
	if err != nil {
		log.Warnf("detach: %s", err)
		return
	}
	if err := state.Close(); err != nil {
		log.Errorf("can't close backing store of %s: %s", device.Name(), err)
	}
}

// Run polls until ctx is cancelled, then releases every backend state. The
// only error it returns is ErrPoll.
func (loop *Loop) Run(ctx context.Context, framework tcmu.Framework) error {
	stop := context.AfterFunc(ctx, loop.wake)
	defer stop()
	defer loop.shutdown()
	for ctx.Err() == nil {
		if err := loop.runOnce(framework); err != nil {
			return err
		}
	}
	return nil
}

func (loop *Loop) wake() {
	loop.wakeMutex.Lock()
	defer loop.wakeMutex.Unlock()
	if loop.wakeClosed {
		return
	}
	if err := common.SignalEventFd(loop.wakeFd); err != nil {
		logger.GetLogger().Errorf("can't wake event loop: %s", err)
	}
}

// Close releases the wake descriptor. Call it after Run returned.
func (loop *Loop) Close() error {
	loop.wakeMutex.Lock()
	defer loop.wakeMutex.Unlock()
	if loop.wakeClosed {
		return nil
	}
	loop.wakeClosed = true
	return unix.Close(loop.wakeFd)
}

const (
	wakeSlot    = 0
	controlSlot = 1
	deviceSlots = 2
)

// runOnce is a single poll iteration.
func (loop *Loop) runOnce(framework tcmu.Framework) error {
	log := logger.GetLogger()
	entries := loop.registry.List()
	descriptors := make([]unix.PollFd, deviceSlots+len(entries))
	descriptors[wakeSlot] = unix.PollFd{Fd: int32(loop.wakeFd), Events: unix.POLLIN}
	descriptors[controlSlot] = unix.PollFd{Fd: int32(framework.ControlFd()), Events: unix.POLLIN}
	for i, entry := range entries {
		descriptors[deviceSlots+i] = unix.PollFd{Fd: int32(entry.Device.Fd()), Events: unix.POLLIN}
	}
	for {
		_, err := unix.Poll(descriptors, -1)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			log.Errorf("poll() returned %s, exiting", err)
			return &ErrPoll{Err: err}
		}
	}

	if descriptors[wakeSlot].Revents != 0 {
		if err := common.DrainEventFd(loop.wakeFd); err != nil {
			log.Warnf("can't drain wake descriptor: %s", err)
		}
		return nil
	}
	if descriptors[controlSlot].Revents&unix.POLLNVAL != 0 {
		log.Errorf("control descriptor %d is not open, exiting", descriptors[controlSlot].Fd)
		return &ErrPoll{Err: unix.EBADF}
	}
	if descriptors[controlSlot].Revents != 0 {
		// devices may have changed, poll again before touching them
		if err := framework.ControlReady(); err != nil {
			log.Errorf("processing lifecycle changes failed: %s", err)
		}
		return nil
	}
	for i, entry := range entries {
		if descriptors[deviceSlots+i].Revents != 0 {
			loop.drain(entry)
		}
	}
	return nil
}

// drain dispatches every queued command of one device and ends the batch if
// anything completed.
func (loop *Loop) drain(entry *Entry) {
	device := entry.Device
	completed := false
	for command := device.NextCommand(); command != nil; command = device.NextCommand() {
		status := loop.dispatch(entry, command)
		if status == tcmu.StatusAsyncHandled {
			continue
		}
		device.CompleteCommand(command, status)
		completed = true
	}
	if completed {
		device.ProcessingComplete()
	}
}

func (loop *Loop) dispatch(entry *Entry, command *tcmu.Command) scsi.Status {
	if loop.executor != nil {
		return loop.executor.dispatch(entry.Device, entry.State, command)
	}
	return Dispatch(entry.State, command)
}

func (loop *Loop) shutdown() {
	log := logger.GetLogger()
	if loop.executor != nil {
		loop.executor.StopAll()
	}
	for _, entry := range loop.registry.List() {
		state, err := loop.registry.Unregister(entry.Device)
		if err != nil {
			continue
		}
		if err := state.Close(); err != nil {
			log.Errorf("can't close backing store of %s: %s", entry.Device.Name(), err)
		}
	}
	log.Info("event loop stopped")
}
