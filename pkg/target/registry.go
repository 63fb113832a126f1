// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package target

import (
	"reflect"
	"sync"

	"tcmutarget/pkg/tcmu"
)

// Entry ties an attached device to its backend state.
type Entry struct {
	Device tcmu.Device
	State  *BackendState
}

// Registry is the set of attached devices in attach order. A capacity of 0
// means unbounded. Devices are keyed by identity, so implementations are
// expected to be pointer types; other incomparable types are refused.
type Registry struct {
	capacity int

	mutex   sync.RWMutex
	entries []*Entry
	index   map[tcmu.Device]int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		index:    make(map[tcmu.Device]int),
	}
}

// Admit reports whether Register would accept device right now.
func (registry *Registry) Admit(device tcmu.Device) error {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.admitLocked(device)
}

// identifiable reports whether device can be used as a map key.
func identifiable(device tcmu.Device) bool {
	return device != nil && reflect.TypeOf(device).Comparable()
}

func (registry *Registry) admitLocked(device tcmu.Device) error {
	if !identifiable(device) {
		name := ""
		if device != nil {
			name = device.Name()
		}
		return ErrIncomparableDevice{Name: name}
	}
	if _, ok := registry.index[device]; ok {
		return ErrDuplicateDevice{Name: device.Name()}
	}
	if registry.capacity > 0 && len(registry.entries) >= registry.capacity {
		return ErrCapacityExceeded{Capacity: registry.capacity}
	}
	return nil
}

// Register appends device. The registry is unchanged when it fails.
func (registry *Registry) Register(device tcmu.Device, state *BackendState) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if err := registry.admitLocked(device); err != nil {
		return err
	}
	registry.index[device] = len(registry.entries)
	registry.entries = append(registry.entries, &Entry{Device: device, State: state})
	return nil
}

// Unregister removes device and hands its state back to the caller, who is
// responsible for closing it. Later entries move up one slot.
func (registry *Registry) Unregister(device tcmu.Device) (*BackendState, error) {
	if !identifiable(device) {
		return nil, ErrIncomparableDevice{Name: device.Name()}
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	position, ok := registry.index[device]
	if !ok {
		return nil, ErrDeviceNotFound{Name: device.Name()}
	}
	state := registry.entries[position].State
	copy(registry.entries[position:], registry.entries[position+1:])
	registry.entries[len(registry.entries)-1] = nil
	registry.entries = registry.entries[:len(registry.entries)-1]
	delete(registry.index, device)
	for i := position; i < len(registry.entries); i++ {
		registry.index[registry.entries[i].Device] = i
	}
	return state, nil
}

func (registry *Registry) Lookup(device tcmu.Device) (*BackendState, bool) {
	if !identifiable(device) {
		return nil, false
	}
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	position, ok := registry.index[device]
	if !ok {
		return nil, false
	}
	return registry.entries[position].State, true
}

// List is a snapshot in attach order.
func (registry *Registry) List() []*Entry {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return append([]*Entry(nil), registry.entries...)
}

func (registry *Registry) Len() int {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return len(registry.entries)
}

func (registry *Registry) Capacity() int {
	return registry.capacity
}
