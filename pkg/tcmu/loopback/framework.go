// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package loopback is an in-process tcmu.Framework. Lifecycle changes and
// queued commands are announced through Linux eventfd descriptors, so a
// handler sees the same poll driven protocol it would see with the kernel.
package loopback

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"tcmutarget/pkg/common"
	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/tcmu"
)

type lifecycleChange struct {
	add    bool
	config DeviceConfig
	name   string
	result chan error
}

// Framework delivers devices to a single tcmu.Handler.
type Framework struct {
	handler   *tcmu.Handler
	controlFd int

	mutex   sync.Mutex
	devices map[string]*Device
	pending []lifecycleChange
	closed  bool
}

var _ tcmu.Framework = (*Framework)(nil)

// Initialize registers handler and attaches the already existing devices
// whose subtype matches it. Attach failures of those devices are logged and
// the devices are dropped.
func Initialize(handler *tcmu.Handler, existing ...DeviceConfig) (*Framework, error) {
	log := logger.GetLogger()
	controlFd, err := common.NewEventFd()
	if err != nil {
		return nil, err
	}
	framework := &Framework{
		handler:   handler,
		controlFd: controlFd,
		devices:   make(map[string]*Device),
	}
	for _, config := range existing {
		if !framework.matchesSubtype(config.Config) {
			log.Debugf("skipping device %s with config %q", config.Name, config.Config)
			continue
		}
		if err := framework.attach(config); err != nil {
			log.Errorf("can't attach device %s: %s", config.Name, err)
		}
	}
	return framework, nil
}

func (framework *Framework) matchesSubtype(config string) bool {
	subtype, _, _ := strings.Cut(config, "/")
	return subtype == framework.handler.Subtype
}

func (framework *Framework) ControlFd() int {
	return framework.controlFd
}

// AddDevice asks for a new device and waits until ControlReady attached it
// or the handler refused it.
func (framework *Framework) AddDevice(ctx context.Context, config DeviceConfig) error {
	return framework.request(ctx, lifecycleChange{add: true, config: config, name: config.Name})
}

// RemoveDevice asks for a device removal and waits until ControlReady
// detached it.
func (framework *Framework) RemoveDevice(ctx context.Context, name string) error {
	return framework.request(ctx, lifecycleChange{name: name})
}

func (framework *Framework) request(ctx context.Context, change lifecycleChange) error {
	change.result = make(chan error, 1)
	framework.mutex.Lock()
	if framework.closed {
		framework.mutex.Unlock()
		return ErrClosed{}
	}
	framework.pending = append(framework.pending, change)
	err := common.SignalEventFd(framework.controlFd)
	framework.mutex.Unlock()
	if err != nil {
		return err
	}
	select {
	case err := <-change.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ControlReady applies every pending lifecycle change in request order.
// Handler callbacks run on the calling goroutine.
func (framework *Framework) ControlReady() error {
	framework.mutex.Lock()
	if framework.closed {
		framework.mutex.Unlock()
		return ErrClosed{}
	}
	if err := common.DrainEventFd(framework.controlFd); err != nil {
		framework.mutex.Unlock()
		return err
	}
	pending := framework.pending
	framework.pending = nil
	framework.mutex.Unlock()

	for _, change := range pending {
		var err error
		if change.add {
			err = framework.attach(change.config)
		} else {
			err = framework.detach(change.name)
		}
		change.result <- err
	}
	return nil
}

func (framework *Framework) attach(config DeviceConfig) error {
	log := logger.GetLogger()
	if !framework.matchesSubtype(config.Config) {
		return ErrConfigRejected{Config: config.Config, Reason: "subtype mismatch"}
	}
	if framework.handler.CheckConfig != nil {
		if ok, reason := framework.handler.CheckConfig(config.Config); !ok {
			return ErrConfigRejected{Config: config.Config, Reason: reason}
		}
	}
	framework.mutex.Lock()
	_, exists := framework.devices[config.Name]
	framework.mutex.Unlock()
	if exists {
		return ErrDeviceExists{Name: config.Name}
	}
	device, err := newDevice(config)
	if err != nil {
		return err
	}
	if framework.handler.Added != nil {
		if err := framework.handler.Added(device); err != nil {
			if closeErr := device.close(); closeErr != nil {
				log.Warnf("can't close descriptor of %s: %s", config.Name, closeErr)
			}
			return err
		}
	}
	framework.mutex.Lock()
	framework.devices[config.Name] = device
	framework.mutex.Unlock()
	log.Infof("device %s added", config.Name)
	return nil
}

func (framework *Framework) detach(name string) error {
	framework.mutex.Lock()
	device, ok := framework.devices[name]
	if ok {
		delete(framework.devices, name)
	}
	framework.mutex.Unlock()
	if !ok {
		return ErrUnknownDevice{Name: name}
	}
	if framework.handler.Removed != nil {
		framework.handler.Removed(device)
	}
	logger.GetLogger().Infof("device %s removed", name)
	return device.close()
}

// Device looks up an attached device by name.
func (framework *Framework) Device(name string) (*Device, bool) {
	framework.mutex.Lock()
	defer framework.mutex.Unlock()
	device, ok := framework.devices[name]
	return device, ok
}

// DeviceNames lists attached devices in lexical order.
func (framework *Framework) DeviceNames() []string {
	framework.mutex.Lock()
	defer framework.mutex.Unlock()
	names := make([]string, 0, len(framework.devices))
	for name := range framework.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every descriptor. Handler.Removed is not called, pending
// lifecycle requests fail with ErrClosed.
func (framework *Framework) Close() error {
	framework.mutex.Lock()
	defer framework.mutex.Unlock()
	if framework.closed {
		return nil
	}
	framework.closed = true
	for _, change := range framework.pending {
		change.result <- ErrClosed{}
	}
	framework.pending = nil
	var result error
	for name, device := range framework.devices {
		if err := device.close(); err != nil && result == nil {
			result = err
		}
		delete(framework.devices, name)
	}
	if err := unix.Close(framework.controlFd); err != nil && result == nil {
		result = err
	}
	return result
}
